package service

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/archifusion/api/internal/model"
)

const opDecode = "decode_input"

// decodeBundle turns the wire bundle into raw media. Every failure is a
// validation error naming the offending field.
func decodeBundle(b *model.InputBundle, maxImage, maxAudio int) (*model.DecodedInput, error) {
	in := &model.DecodedInput{
		Text:             strings.TrimSpace(b.Text),
		SpeechTranscript: strings.TrimSpace(b.SpeechTranscript),
	}

	var err error
	if in.Sketch, err = decodeImage("sketchImage", b.SketchImage, maxImage); err != nil {
		return nil, err
	}
	if in.Photo, err = decodeImage("photoImage", b.PhotoImage, maxImage); err != nil {
		return nil, err
	}
	if in.SpeechAudio, err = decodeAudio("speechAudio", b.SpeechAudio, maxAudio); err != nil {
		return nil, err
	}
	return in, nil
}

func decodeImage(field, raw string, limit int) (*model.Media, error) {
	data, _, err := decodePayload(field, raw, limit)
	if err != nil || data == nil {
		return nil, err
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fieldError(field, "mime", fmt.Sprintf("%s must be an image, got %s", field, mt.String()))
	}
	return &model.Media{Data: data, MIMEType: mt.String()}, nil
}

func decodeAudio(field, raw string, limit int) (*model.Media, error) {
	data, declared, err := decodePayload(field, raw, limit)
	if err != nil || data == nil {
		return nil, err
	}
	mt := mimetype.Detect(data).String()
	if mt == "application/octet-stream" && declared != "" {
		mt = declared
	}
	return &model.Media{Data: data, MIMEType: mt}, nil
}

// decodePayload accepts plain base64 or a data URL. It returns nil data for
// an absent field, and the MIME type a data URL declared.
func decodePayload(field, raw string, limit int) ([]byte, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, "", nil
	}

	var declared string
	if strings.HasPrefix(raw, "data:") {
		header, body, ok := strings.Cut(raw, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, "", fieldError(field, "base64", field+" must be a base64 data URL")
		}
		declared = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		raw = body
	}
	raw = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, raw)

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(raw); err != nil {
			return nil, "", fieldError(field, "base64", field+" is not valid base64")
		}
	}
	if len(data) == 0 {
		return nil, "", fieldError(field, "required", field+" is empty")
	}
	if len(data) > limit {
		return nil, "", fieldError(field, "max", fmt.Sprintf("%s exceeds %d bytes", field, limit))
	}
	return data, declared, nil
}

func fieldError(field, tag, message string) error {
	return model.NewValidationError(opDecode, message, map[string]string{field: tag})
}
