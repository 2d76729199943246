package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestSign(t *testing.T) {
	c := New("demo", "key", "secret", "")
	got := c.sign(map[string]string{"timestamp": "1700000000", "folder": "ktm", "api_key": "key", "file": "x"})
	want := fmt.Sprintf("%x", sha1.Sum([]byte("folder=ktm&timestamp=1700000000secret")))
	assert.Equal(t, want, got)
}

func TestCheckFile(t *testing.T) {
	ct, err := CheckFile(pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)

	_, err = CheckFile([]byte("%PDF-1.7\n%...."))
	assert.NoError(t, err)

	_, err = CheckFile(nil)
	assert.ErrorIs(t, err, ErrEmptyFile)
	_, err = CheckFile([]byte("#!/bin/sh\necho hi\n"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
	_, err = CheckFile(bytes.Repeat([]byte{0xff}, MaxFileSize+1))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestUploadBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1_1/demo/auto/upload", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "key", r.FormValue("api_key"))
		assert.Equal(t, "kompetisi/ktm", r.FormValue("folder"))
		assert.Equal(t, "1700000000", r.FormValue("timestamp"))
		assert.NotEmpty(t, r.FormValue("signature"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "a001.png", hdr.Filename)
		assert.Equal(t, pngHeader, data)

		_, _ = w.Write([]byte(`{"public_id":"kompetisi/ktm/abc","secure_url":"https://res.cloudinary.com/demo/image/upload/abc.png","format":"png"}`))
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "kompetisi/ktm")
	c.BaseURL = srv.URL
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	res, err := c.UploadBytes(context.Background(), pngHeader, "a001.png")
	require.NoError(t, err)
	assert.Equal(t, "kompetisi/ktm/abc", res.PublicID)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/abc.png", res.SecureURL)
}

func TestUploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid Signature"}}`))
	}))
	defer srv.Close()

	c := New("demo", "key", "wrong", "")
	c.BaseURL = srv.URL
	_, err := c.UploadBase64(context.Background(), "data:image/png;base64,AAAA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestDecodeDataURL(t *testing.T) {
	enc := base64.StdEncoding.EncodeToString(pngHeader)

	got, err := DecodeDataURL("data:image/png;base64," + enc)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, got)

	got, err = DecodeDataURL(" " + enc + "\n")
	require.NoError(t, err)
	assert.Equal(t, pngHeader, got)

	_, err = DecodeDataURL("data:image/png," + enc)
	assert.ErrorIs(t, err, ErrBadEncoding)
	_, err = DecodeDataURL("not base64!!")
	assert.ErrorIs(t, err, ErrBadEncoding)
	_, err = DecodeDataURL(strings.Repeat("A", base64.StdEncoding.EncodedLen(MaxFileSize)+4))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}
