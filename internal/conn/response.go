package conn

import (
	"compress/gzip"
	"compress/zlib"
	"io"
	"net/http"

	"github.com/stratalake/strata-ingest-go/errors"
)

// translateBody wraps the response body with the decompressor its
// Content-Encoding names. The returned ReadCloser closes the original body.
func translateBody(resp *http.Response, op errors.Op) (io.ReadCloser, error) {
	switch enc := resp.Header.Get("Content-Encoding"); enc {
	case "":
		return resp.Body, nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, errors.ES(op, errors.KInternal, "gzip reader error: %s", err)
		}
		return wrapped{ReadCloser: zr, original: resp.Body}, nil
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, errors.ES(op, errors.KInternal, "deflate reader error: %s", err)
		}
		return wrapped{ReadCloser: zr, original: resp.Body}, nil
	default:
		return nil, errors.ES(op, errors.KInternal, "Content-Encoding was unrecognized: %s", enc)
	}
}

// wrapped closes both the decompressor and the network body beneath it.
type wrapped struct {
	io.ReadCloser
	original io.ReadCloser
}

func (w wrapped) Close() error {
	err := w.ReadCloser.Close()
	if cerr := w.original.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
