package store

import (
	"testing"

	"github.com/reachlab/reach-data/internal/model"
)

func TestFiscalQuarter(t *testing.T) {
	if got := fiscalQuarter(model.FiscalPeriod{Year: 2023, Quarter: 0}); got != nil {
		t.Errorf("annual quarter = %v, want nil", *got)
	}

	for q := 1; q <= 3; q++ {
		got := fiscalQuarter(model.FiscalPeriod{Year: 2023, Quarter: q})
		if got == nil || *got != q {
			t.Errorf("fiscalQuarter(Q%d) = %v, want %d", q, got, q)
		}
	}
}
