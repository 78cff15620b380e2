package environment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryLookupsRoundTrip(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterExtractor("coco", func(ctx context.Context, path string, options map[string]interface{}) (interface{}, error) {
		return "dataset:" + path, nil
	})
	reg.RegisterTransform("shuffle", func(ctx context.Context, dataset interface{}, params map[string]interface{}) (interface{}, error) {
		return dataset, nil
	})

	fn, ok := reg.Extractor("coco")
	require.True(t, ok)
	out, err := fn(context.Background(), "/data", nil)
	require.NoError(t, err)
	require.Equal(t, "dataset:/data", out)

	_, ok = reg.Extractor("unknown")
	require.False(t, ok)

	require.True(t, reg.IsFormatKnown("coco"))
	require.False(t, reg.IsFormatKnown("unknown"))
}

func TestDetectDatasetTriesDetectorsInOrder(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterDetector(func(path string) (string, bool) { return "", false })
	reg.RegisterDetector(func(path string) (string, bool) { return "voc", true })

	format, ok := reg.DetectDataset("/data")
	require.True(t, ok)
	require.Equal(t, "voc", format)

	empty := NewRegistry()
	_, ok = empty.DetectDataset("/data")
	require.False(t, ok)
}
