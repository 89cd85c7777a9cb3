package ndarray

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKernelSourcesWellFormed(t *testing.T) {
	for entry, src := range kernelSources {
		assert.Contains(t, src, "fn "+entry+"(", "entry point missing in %s", entry)
		assert.NotContains(t, src, "%!", "unfilled format verb in %s", entry)
		assert.NotContains(t, src, "%s", "unfilled format verb in %s", entry)
	}
}

func TestScanShaderSeedsIdentity(t *testing.T) {
	assert.Contains(t, kernelSources["scan_sum"], "var acc = 0.0;")
	assert.Contains(t, kernelSources["scan_sum"], "acc = acc + v;")
	assert.Contains(t, kernelSources["scan_prod"], "var acc = 1.0;")
	assert.Contains(t, kernelSources["scan_prod"], "acc = acc * v;")
}

func TestKernelSourceHostOnlyEntries(t *testing.T) {
	for _, entry := range []string{"argsort", "partition", "argpartition", "reduce_argmax", "reduce_argmin"} {
		src := kernelSource(entry)
		assert.True(t, strings.HasPrefix(src, "// host-only kernel:"), "entry %s", entry)
	}
}
