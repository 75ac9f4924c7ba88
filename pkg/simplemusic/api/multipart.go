package api

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/tendant/simple-music/pkg/simplemusic"
)

// maxFormMemory is the part of a multipart body held in memory; the rest is
// spooled to temporary files by net/http.
const maxFormMemory = 8 << 20

// parseForm parses multipart and urlencoded bodies alike
func parseForm(r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return r.ParseMultipartForm(maxFormMemory)
	}
	return r.ParseForm()
}

// formUpload returns the file sent in field, or nil when the field is
// absent. The caller closes the returned file.
func formUpload(r *http.Request, field string) (*simplemusic.Upload, multipart.File, error) {
	if r.MultipartForm == nil {
		return nil, nil, nil
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return &simplemusic.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Reader:      file,
	}, file, nil
}

// optionalField returns nil when field was not sent at all
func optionalField(r *http.Request, field string) *string {
	values, ok := r.Form[field]
	if !ok || len(values) == 0 {
		return nil
	}
	v := strings.TrimSpace(values[0])
	return &v
}

// closeAll closes every non-nil file
func closeAll(files ...multipart.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
