package service

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
)

// Типы трансформаций контента для симуляции подмены.
const (
	TransformRotate90  = "rotate90"
	TransformRotate180 = "rotate180"
	TransformAdjust    = "adjust"
	TransformCrop      = "crop"
)

// ValidTransform проверяет, поддерживается ли тип трансформации.
func ValidTransform(t string) bool {
	switch t {
	case TransformRotate90, TransformRotate180, TransformAdjust, TransformCrop:
		return true
	}
	return false
}

// applyTransform применяет трансформацию к изображению и возвращает
// результат в исходном формате (png или jpeg).
// Контент, не являющийся изображением, — ошибка валидации: подменять
// можно только изображения, водяной знак встраивается в пиксели.
func applyTransform(data []byte, transform string) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: контент не является изображением", ErrValidation)
	}

	var out image.Image
	switch transform {
	case TransformRotate90:
		out = rotate90(img)
	case TransformRotate180:
		out = rotate180(img)
	case TransformAdjust:
		out = addNoise(img)
	case TransformCrop:
		out = cropCenter(img)
	default:
		return nil, fmt.Errorf("%w: неизвестный тип трансформации %q", ErrValidation, transform)
	}

	buf := &bytes.Buffer{}
	switch format {
	case "jpeg":
		err = jpeg.Encode(buf, out, &jpeg.Options{Quality: 90})
	default:
		// png и прочие форматы, которые удалось декодировать
		err = png.Encode(buf, out)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка кодирования изображения: %w", err)
	}

	return buf.Bytes(), nil
}

// rotate90 поворачивает изображение на 90 градусов по часовой стрелке.
func rotate90(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.Y-1-y, x-b.Min.X, src.At(x, y))
		}
	}
	return dst
}

// rotate180 поворачивает изображение на 180 градусов.
func rotate180(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.X-1-x, b.Max.Y-1-y, src.At(x, y))
		}
	}
	return dst
}

// addNoise добавляет к изображению случайный шум.
// Достаточно интенсивный, чтобы разрушить водяной знак.
func addNoise(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := src.At(x, y).RGBA()
			dst.Set(x, y, color.RGBA{
				R: clampNoise(uint8(r>>8), 25),
				G: clampNoise(uint8(g>>8), 25),
				B: clampNoise(uint8(bl>>8), 25),
				A: uint8(a >> 8),
			})
		}
	}
	return dst
}

// clampNoise добавляет к каналу случайное значение в диапазоне [-amp, amp]
// с ограничением 0..255.
func clampNoise(v uint8, amp int) uint8 {
	n := int(v) + rand.Intn(2*amp+1) - amp
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return uint8(n)
}

// cropCenter обрезает изображение до центральных 80% по каждой стороне.
func cropCenter(src image.Image) image.Image {
	b := src.Bounds()
	dx, dy := b.Dx()/10, b.Dy()/10
	crop := image.Rect(b.Min.X+dx, b.Min.Y+dy, b.Max.X-dx, b.Max.Y-dy)
	if crop.Empty() {
		crop = b
	}

	dst := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	for y := crop.Min.Y; y < crop.Max.Y; y++ {
		for x := crop.Min.X; x < crop.Max.X; x++ {
			dst.Set(x-crop.Min.X, y-crop.Min.Y, src.At(x, y))
		}
	}
	return dst
}
