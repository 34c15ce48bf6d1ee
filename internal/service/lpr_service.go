package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"go.uber.org/zap"

	"parking_garage/internal/domain"
	"parking_garage/internal/logger"
)

var ErrPlateNotRecognized = errors.New("no licence plate recognised in image")

// TextDetector is the part of the Rekognition client the LPR service calls.
type TextDetector interface {
	DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

// Plates are 4 to 8 letters and digits once separators are stripped, with
// at least one of each.
var (
	plateShape  = regexp.MustCompile(`^[A-Z0-9]{4,8}$`)
	plateLetter = regexp.MustCompile(`[A-Z]`)
	plateDigit  = regexp.MustCompile(`[0-9]`)
)

type LPRService struct {
	detector      TextDetector
	minConfidence float32
	log           *logger.Logger
}

func NewLPRService(detector TextDetector, minConfidence float32) *LPRService {
	return &LPRService{detector: detector, minConfidence: minConfidence, log: logger.Named("lpr")}
}

// RecognizePlate runs text detection on image and returns the plate-shaped
// text with the highest confidence.
func (s *LPRService) RecognizePlate(ctx context.Context, image []byte) (string, float32, error) {
	if s.detector == nil {
		return "", 0, fmt.Errorf("LPRService: rekognition client not configured")
	}
	if len(image) == 0 {
		return "", 0, domain.NewValidationError("image is empty")
	}

	result, err := s.detector.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: image},
	})
	if err != nil {
		return "", 0, fmt.Errorf("LPRService: rekognition: %w", err)
	}

	var (
		seen          []string
		bestPlate     string
		maxConfidence float32
	)
	for _, td := range result.TextDetections {
		if td.Type != types.TextTypesLine && td.Type != types.TextTypesWord {
			continue
		}
		if td.DetectedText == nil || td.Confidence == nil {
			continue
		}
		txt := domain.NormalizePlate(*td.DetectedText)
		seen = append(seen, fmt.Sprintf("%s (%.2f)", txt, *td.Confidence))
		if !looksLikePlate(txt) || *td.Confidence < s.minConfidence {
			continue
		}
		if *td.Confidence > maxConfidence {
			maxConfidence = *td.Confidence
			bestPlate = txt
		}
	}

	if bestPlate == "" {
		s.log.Info("no plate in detected text", zap.Strings("texts", seen))
		return "", 0, fmt.Errorf("%w (text: %s)", ErrPlateNotRecognized, strings.Join(seen, ", "))
	}
	s.log.Debug("plate recognised", zap.String("plate", bestPlate), zap.Float32("confidence", maxConfidence))
	return bestPlate, maxConfidence, nil
}

func looksLikePlate(txt string) bool {
	return plateShape.MatchString(txt) && plateLetter.MatchString(txt) && plateDigit.MatchString(txt)
}
