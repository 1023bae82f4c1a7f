package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

// Errors returned by Open.
var (
	ErrUnsupportedSource = errors.New("unsupported source")
	ErrS3Unavailable     = errors.New("s3 source is not configured")
)

// Opener resolves source URIs to row streams. The zero value opens local
// files only.
type Opener struct {
	s3 ObjectGetter
}

// NewOpener returns an Opener that reads s3:// URIs through client. client
// may be nil.
func NewOpener(client ObjectGetter) *Opener {
	return &Opener{s3: client}
}

// Open accepts a local path, a file:// URL or an s3://bucket/key URL. Only
// .csv and .txt files are read.
func (o *Opener) Open(ctx context.Context, uri string, importType models.ImportType) (Rows, error) {
	body, name, err := o.body(ctx, uri)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
	default:
		body.Close()
		return nil, fmt.Errorf("%w: %s is not a csv file", ErrUnsupportedSource, name)
	}
	rows, err := NewCSV(body, importType)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return rows, nil
}

func (o *Opener) body(ctx context.Context, uri string) (io.ReadCloser, string, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain path, including Windows drive letters.
		return openFile(uri)
	}

	switch u.Scheme {
	case "file":
		return openFile(u.Path)
	case "s3":
		if o.s3 == nil {
			return nil, "", ErrS3Unavailable
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, "", fmt.Errorf("%w: %s needs a bucket and key", ErrUnsupportedSource, uri)
		}
		body, err := getObject(ctx, o.s3, u.Host, key)
		if err != nil {
			return nil, "", err
		}
		return body, key, nil
	}
	return nil, "", fmt.Errorf("%w: scheme %q", ErrUnsupportedSource, u.Scheme)
}

func openFile(path string) (io.ReadCloser, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, path, nil
}
