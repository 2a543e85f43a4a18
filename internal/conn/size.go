package conn

import (
	"github.com/stratalake/strata-ingest-go/internal/properties"
)

const mib = 1024 * 1024

// MaxStreamingSize is the base streaming body cap, before the per-format
// factor is applied.
const MaxStreamingSize = 4 * mib

// sizeFactor scales the streaming body cap by how the engine's row store
// expands the payload. Compressed inputs inflate, so they get a larger
// allowance; verbose text formats shrink, so they get a smaller one.
func sizeFactor(format properties.DataFormat, compressed bool) float64 {
	type factors struct {
		uncompressed, compressed float64
	}
	f := factors{1.0, 1.0}
	switch format {
	case properties.CSV:
		f = factors{0.45, 3.6}
	case properties.TSV, properties.PSV:
		f = factors{1.0, 1.5}
	case properties.JSON:
		f = factors{0.33, 3.6}
	case properties.MultiJSON:
		f = factors{1.0, 5.15}
	case properties.TXT:
		f = factors{0.15, 1.8}
	case properties.AVRO, properties.ApacheAVRO:
		f = factors{0.55, 1.0}
	case properties.Parquet:
		f = factors{3.35, 1.0}
	}
	if compressed {
		return f.compressed
	}
	return f.uncompressed
}

// MaxBodySize returns the maximum streaming body size for the given format
// and compression state.
func MaxBodySize(format properties.DataFormat, compression properties.CompressionType) int64 {
	compressed := compression != properties.CTNone && compression != properties.CTUnknown
	return int64(float64(MaxStreamingSize) * sizeFactor(format, compressed))
}
