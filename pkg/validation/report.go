package validation

// OutlierFactor is the IQR multiplier used for outlier detection and capping.
const OutlierFactor = 1.5

const topValueLimit = 10

type Report struct {
	Basic        BasicChecks            `json:"basic_checks"`
	DataTypes    map[string]DTypeInfo   `json:"data_types"`
	Missing      MissingSummary         `json:"missing_values"`
	Outliers     map[string]OutlierInfo `json:"outliers"`
	Target       *TargetInfo            `json:"target_column"`
	Warnings     []string               `json:"warnings"`
	IsValid      bool                   `json:"is_valid"`
	CleaningPlan CleaningPlan           `json:"cleaning_plan"`
}

type BasicChecks struct {
	IsEmpty       bool   `json:"is_empty"`
	Shape         [2]int `json:"shape"`
	DuplicateRows int    `json:"duplicate_rows"`
}

type DTypeInfo struct {
	DType        string `json:"dtype"`
	IsNumeric    bool   `json:"is_numeric"`
	UniqueValues int    `json:"unique_values"`
}

type ColumnMissing struct {
	MissingCount      int     `json:"missing_count"`
	MissingPercentage float64 `json:"missing_percentage"`
}

type MissingSummary struct {
	Columns           map[string]ColumnMissing `json:"columns"`
	TotalMissing      int                      `json:"total_missing"`
	PercentageOverall float64                  `json:"missing_percentage_overall"`
}

type OutlierInfo struct {
	Count int     `json:"count"`
	Lower float64 `json:"lower_bound"`
	Upper float64 `json:"upper_bound"`
}

type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

type TargetInfo struct {
	Name          string       `json:"name"`
	Exists        bool         `json:"exists"`
	DType         string       `json:"dtype"`
	UniqueValues  int          `json:"unique_values"`
	MissingValues int          `json:"missing_values"`
	MissingRatio  float64      `json:"missing_ratio"`
	TopValues     []ValueCount `json:"top_values"`
}

type Bounds struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// CleaningPlan declares the remediation ApplyCleaning will perform. Fill values
// and bounds are computed from the table the plan was derived from.
type CleaningPlan struct {
	DropDuplicates    bool               `json:"drop_duplicates"`
	ImputeNumeric     map[string]float64 `json:"impute_numeric"`
	ImputeCategorical map[string]string  `json:"impute_categorical"`
	CapOutliers       map[string]Bounds  `json:"cap_outliers"`
	ChangesRequired   bool               `json:"changes_required"`
}

type CleaningSummary struct {
	DuplicatesRemoved int `json:"duplicates_removed"`
	MissingImputed    int `json:"missing_imputed"`
	OutliersCapped    int `json:"outliers_capped"`
	RowsBefore        int `json:"rows_before"`
	RowsAfter         int `json:"rows_after"`
}
