package nodegraph

import (
	"crypto/rand"
	"encoding/binary"
	"sort"
	"strconv"
	"strings"
)

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// sortStrings sorts node ids numerically when every id parses as an
// integer (the common ComfyUI-style template shape), falling back to a
// plain lexical sort otherwise.
func sortStrings(ids []string) {
	allNumeric := true
	nums := make([]int, len(ids))
	for i, id := range ids {
		n, err := strconv.Atoi(id)
		if err != nil {
			allNumeric = false
			break
		}
		nums[i] = n
	}
	if allNumeric {
		sort.Slice(ids, func(i, j int) bool { return nums[i] < nums[j] })
		return
	}
	sort.Strings(ids)
}

// NewSeed returns a random non-zero int64 sampler seed.
func NewSeed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 1
	}
	v := int64(binary.BigEndian.Uint64(b[:]))
	if v < 0 {
		v = -v
	}
	if v == 0 {
		v = 1
	}
	return v
}
