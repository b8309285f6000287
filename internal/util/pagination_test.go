package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		page, size         int
		wantOffset, wantLn int
	}{
		{page: 0, size: 0, wantOffset: 0, wantLn: DefaultPageSize},
		{page: 1, size: 20, wantOffset: 0, wantLn: 20},
		{page: 3, size: 20, wantOffset: 40, wantLn: 20},
		{page: 2, size: 1000, wantOffset: DefaultPageSize, wantLn: DefaultPageSize},
		{page: -4, size: 5, wantOffset: 0, wantLn: 5},
	}
	for _, tt := range tests {
		offset, limit := Calculate(tt.page, tt.size)
		assert.Equal(t, tt.wantOffset, offset, "page=%d size=%d", tt.page, tt.size)
		assert.Equal(t, tt.wantLn, limit, "page=%d size=%d", tt.page, tt.size)
	}
}
