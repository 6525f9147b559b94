package models

// ScaleFP is the fixed-point scale used for score_fp, matching the
// on-chain int128 representation: S = 10^18.
const ScaleFP = 1_000_000_000_000_000_000

// BasisPointsScale is the denominator for confidence_bp (10000 = 100%).
const BasisPointsScale = 10000

// AssetSample is the per-(asset, window) aggregated unit.
type AssetSample struct {
	Asset             string // opaque identifier; rendered to an address for on-chain submission
	ScoreFP           int64  // signed, in [-ScaleFP, +ScaleFP]
	ConfidenceBP      int64  // in [0, BasisPointsScale]
	SampleSize        int64  // positive, count of contributing items
	WindowEndTS       int64  // seconds
	ManipulationScore float64
}

// SubmissionJob is the Submitter's unit of work: the surviving samples of
// one cycle plus chain-level parameters.
type SubmissionJob struct {
	Samples       []AssetSample
	ChainID       int64
	ContractAddr  string
	GasCeiling    uint64
	CycleDeadline int64 // unix seconds
}
