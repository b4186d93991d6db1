package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"mime/multipart"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/image/draw"

	"github.com/maheshrc27/instapress/internal/apperr"
	"github.com/maheshrc27/instapress/internal/models"
	"github.com/maheshrc27/instapress/internal/repository"
)

// Instagram accepts images between 320 and 1440 px on a side.
const (
	minImageDim = 320
	maxImageDim = 1440

	jpegQuality = 95

	derivedPrefix = "ig-temp/"
)

// Aspect ratios the publish flow supports, width/height.
var aspectRatios = map[string]float64{
	"1:1":    1.0,
	"4:5":    0.8,
	"1.91:1": 1.91,
}

type MediaService interface {
	Upload(ctx context.Context, files []*multipart.FileHeader) ([]*models.MediaAsset, error)
	List(ctx context.Context, limit int, search string) ([]*models.MediaAsset, error)
	ResolvePublicURL(ctx context.Context, imageID int64, crop *models.CropData) (string, error)
	ResolveForAspect(ctx context.Context, imageIDs []int64, aspectRatio string) ([]string, error)
}

type mediaService struct {
	ma repository.MediaAssetRepository
	r2 *R2Service
}

func NewMediaService(ma repository.MediaAssetRepository, r2 *R2Service) MediaService {
	return &mediaService{ma: ma, r2: r2}
}

func (s *mediaService) Upload(ctx context.Context, files []*multipart.FileHeader) ([]*models.MediaAsset, error) {
	if len(files) == 0 {
		return nil, apperr.Validation("no files provided")
	}

	var assets []*models.MediaAsset
	for _, file := range files {
		fileContent, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening file: %w", err)
		}

		fileBytes, err := io.ReadAll(fileContent)
		fileContent.Close()
		if err != nil {
			return nil, fmt.Errorf("error reading file content: %w", err)
		}

		kind, err := filetype.Match(fileBytes)
		if err != nil || kind == types.Unknown {
			return nil, apperr.Validation("unsupported file type for %s", file.Filename)
		}
		switch kind.Extension {
		case "jpg", "jpeg", "png":
		default:
			return nil, apperr.Validation("file type %s is not allowed", kind.Extension)
		}

		img, _, err := image.Decode(bytes.NewReader(fileBytes))
		if err != nil {
			return nil, apperr.Validation("cannot decode image %s", file.Filename)
		}
		bounds := img.Bounds()

		key, err := gonanoid.New()
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}

		if err := s.r2.Upload(ctx, key, fileBytes, kind.MIME.Value); err != nil {
			return nil, fmt.Errorf("error uploading file: %w", err)
		}

		asset := &models.MediaAsset{
			FileName: key,
			FileType: kind.MIME.Value,
			FileSize: int64(len(fileBytes)),
			FileURL:  s.r2.PublicURL(key),
			Width:    bounds.Dx(),
			Height:   bounds.Dy(),
		}
		assetID, err := s.ma.Create(ctx, nil, asset)
		if err != nil {
			return nil, err
		}
		asset.ID = assetID
		assets = append(assets, asset)
	}
	return assets, nil
}

func (s *mediaService) List(ctx context.Context, limit int, search string) ([]*models.MediaAsset, error) {
	return s.ma.List(ctx, limit, search)
}

// ResolvePublicURL produces a publicly fetchable URL for one stored image,
// cropped per the given rectangle (or center-cropped square when nil) and
// bounded to Instagram's size limits.
func (s *mediaService) ResolvePublicURL(ctx context.Context, imageID int64, crop *models.CropData) (string, error) {
	asset, err := s.ma.GetByID(ctx, imageID)
	if err != nil {
		return "", err
	}
	if asset == nil {
		return "", &apperr.NotFoundError{Resource: fmt.Sprintf("media asset %d", imageID)}
	}

	raw, err := s.r2.Get(ctx, asset.FileName)
	if err != nil {
		return "", fmt.Errorf("error fetching asset %d: %w", imageID, err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("error decoding asset %d: %w", imageID, err)
	}

	rect := cropRect(img.Bounds(), crop)
	processed, err := cropAndScale(img, rect)
	if err != nil {
		return "", err
	}

	key, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	derivedKey := derivedPrefix + key + ".jpg"

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, processed, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("error encoding image: %w", err)
	}

	if err := s.r2.Upload(ctx, derivedKey, buf.Bytes(), "image/jpeg"); err != nil {
		return "", fmt.Errorf("error uploading processed image: %w", err)
	}

	return s.r2.PublicURL(derivedKey), nil
}

func (s *mediaService) ResolveForAspect(ctx context.Context, imageIDs []int64, aspectRatio string) ([]string, error) {
	ratio, ok := aspectRatios[aspectRatio]
	if !ok {
		ratio = 1.0
	}

	urls := make([]string, 0, len(imageIDs))
	for _, imageID := range imageIDs {
		asset, err := s.ma.GetByID(ctx, imageID)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			return nil, &apperr.NotFoundError{Resource: fmt.Sprintf("media asset %d", imageID)}
		}

		crop := centerCrop(asset.Width, asset.Height, ratio)
		publicURL, err := s.ResolvePublicURL(ctx, imageID, &crop)
		if err != nil {
			return nil, err
		}
		urls = append(urls, publicURL)
	}
	return urls, nil
}

// cropRect turns explicit crop data into an image rectangle, clamped to the
// source bounds; nil crop data means center-crop to square.
func cropRect(bounds image.Rectangle, crop *models.CropData) image.Rectangle {
	if crop == nil || crop.Width <= 0 || crop.Height <= 0 {
		c := centerCrop(bounds.Dx(), bounds.Dy(), 1.0)
		crop = &c
	}
	rect := image.Rect(crop.X, crop.Y, crop.X+crop.Width, crop.Y+crop.Height)
	return rect.Intersect(bounds)
}

// centerCrop computes the largest centered rectangle with the target
// width/height ratio that fits the source dimensions.
func centerCrop(width, height int, targetRatio float64) models.CropData {
	currentRatio := float64(width) / float64(height)

	if currentRatio > targetRatio {
		newWidth := int(float64(height) * targetRatio)
		return models.CropData{
			X:      (width - newWidth) / 2,
			Y:      0,
			Width:  newWidth,
			Height: height,
		}
	}

	newHeight := int(float64(width) / targetRatio)
	return models.CropData{
		X:      0,
		Y:      (height - newHeight) / 2,
		Width:  width,
		Height: newHeight,
	}
}

// scaleBounds clamps dimensions into [minImageDim, maxImageDim] preserving
// aspect ratio.
func scaleBounds(width, height int) (int, int) {
	scale := 1.0
	longest := width
	if height > longest {
		longest = height
	}
	shortest := width
	if height < shortest {
		shortest = height
	}

	if longest > maxImageDim {
		scale = float64(maxImageDim) / float64(longest)
	} else if shortest < minImageDim {
		scale = float64(minImageDim) / float64(shortest)
	}
	if scale == 1.0 {
		return width, height
	}

	newWidth := int(float64(width) * scale)
	newHeight := int(float64(height) * scale)
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}
	return newWidth, newHeight
}

func cropAndScale(img image.Image, rect image.Rectangle) (image.Image, error) {
	if rect.Empty() {
		return nil, apperr.Validation("crop rectangle is outside the image")
	}

	targetWidth, targetHeight := scaleBounds(rect.Dx(), rect.Dy())
	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, rect, draw.Over, nil)
	return dst, nil
}
