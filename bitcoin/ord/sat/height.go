// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package sat

// Height defines a block height.
type Height uint32

// N returns the height as uint32.
func (h Height) N() uint32 {
	return uint32(h)
}

// Subsidy returns the block subsidy at the height in satoshis.
func (h Height) Subsidy() uint64 {
	return EpochOfHeight(h).Subsidy()
}

// StartingSat returns the first satoshi mined in the block at the height.
func (h Height) StartingSat() Sat {
	epoch := EpochOfHeight(h)

	return epoch.StartingSat() +
		Sat(uint64(h-epoch.StartingHeight())*epoch.Subsidy())
}

// PeriodOffset returns the offset of the height within its difficulty adjustment period.
func (h Height) PeriodOffset() uint32 {
	return h.N() % DiffChangeInterval
}

// EpochOffset returns the offset of the height within its halving epoch.
func (h Height) EpochOffset() uint32 {
	return h.N() % SubsidyHalvingInterval
}
