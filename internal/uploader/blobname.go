package uploader

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/stratalake/strata-ingest-go/internal/properties"
)

// blobName builds the staging blob name for a source:
// {db}__{table}__{original name without extensions}__{uuid}[.{format}][.gz]
// The original name keeps blobs traceable; the UUID keeps them unique.
func blobName(db, table, originalName string, id uuid.UUID, format properties.DataFormat, encoding properties.CompressionType) string {
	base := originalName
	if u, err := url.Parse(originalName); err == nil && u.Scheme != "" {
		base = u.Path
	}
	base = filepath.Base(base)
	base = strings.TrimSuffix(strings.TrimSuffix(base, ".gz"), ".zip")
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "stream"
	}

	name := fmt.Sprintf("%s__%s__%s__%s", db, table, base, id)
	if f := format.String(); f != "" {
		name += "." + f
	}
	if ext := encoding.Ext(); ext != "" {
		name += "." + ext
	}
	return name
}
