package analysis

// CodingReviewResults is the diagnosis coding review payload.
type CodingReviewResults struct {
	PatientInfo          PatientInfo                `json:"patientInfo"`
	PrimaryDiagnosis     PrimaryDiagnosisCoding     `json:"primaryDiagnosis"`
	SecondaryDiagnoses   SecondaryDiagnosisAnalysis `json:"secondaryDiagnoses"`
	Corrections          []CodingCorrection         `json:"corrections"`
	ReimbursementWeights ReimbursementWeights       `json:"reimbursementWeights"`
	Recommendations      []Recommendation           `json:"recommendations"`
	Summary              CodingSummary              `json:"summary"`
}

// CodeOption is a diagnosis code with the reasoning behind suggesting it.
type CodeOption struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Rationale   string `json:"rationale"`
}

type PrimaryDiagnosisCoding struct {
	ReportedCode           string       `json:"reportedCode"`
	ReportedDescription    string       `json:"reportedDescription"`
	RecommendedCode        string       `json:"recommendedCode"`
	RecommendedDescription string       `json:"recommendedDescription"`
	Accuracy               string       `json:"accuracy"`
	Rationale              string       `json:"rationale"`
	ClinicalGroup          string       `json:"clinicalGroup"`
	Alternatives           []CodeOption `json:"alternatives"`
	SequencingGuidance     []string     `json:"sequencingGuidance"`
}

type SecondaryDiagnosisAnalysis struct {
	Codes            []SecondaryCode `json:"codes"`
	MissingDiagnoses []CodeOption    `json:"missingDiagnoses"`
	SequencingIssues []string        `json:"sequencingIssues"`
}

type SecondaryCode struct {
	Code            string `json:"code"`
	Description     string `json:"description"`
	Status          string `json:"status"`
	ComorbidityTier string `json:"comorbidityTier"`
	Rationale       string `json:"rationale"`
}

type CodingCorrection struct {
	Field          string `json:"field"`
	CurrentValue   string `json:"currentValue"`
	SuggestedValue string `json:"suggestedValue"`
	Reason         string `json:"reason"`
	Impact         string `json:"impact"`
}

type ReimbursementWeights struct {
	CurrentClinicalGroup             string   `json:"currentClinicalGroup"`
	RecommendedClinicalGroup         string   `json:"recommendedClinicalGroup"`
	CurrentComorbidityAdjustment     string   `json:"currentComorbidityAdjustment"`
	RecommendedComorbidityAdjustment string   `json:"recommendedComorbidityAdjustment"`
	CurrentCaseMixWeight             float64  `json:"currentCaseMixWeight"`
	RecommendedCaseMixWeight         float64  `json:"recommendedCaseMixWeight"`
	Notes                            []string `json:"notes"`
}

type CodingSummary struct {
	TotalCodesReviewed     int     `json:"totalCodesReviewed"`
	CodesCorrect           int     `json:"codesCorrect"`
	CodesNeedingCorrection int     `json:"codesNeedingCorrection"`
	MissingCodes           int     `json:"missingCodes"`
	AccuracyRate           float64 `json:"accuracyRate"`
	EstimatedRevenueImpact float64 `json:"estimatedRevenueImpact"`
}

// EmptyCodingReview returns the canonical empty coding review payload.
func EmptyCodingReview() *CodingReviewResults {
	r := &CodingReviewResults{}
	r.normalize()
	return r
}

func (r *CodingReviewResults) AnalysisType() Type { return TypeCodingReview }

func (r *CodingReviewResults) normalize() {
	r.PrimaryDiagnosis.Alternatives = nonNil(r.PrimaryDiagnosis.Alternatives)
	r.PrimaryDiagnosis.SequencingGuidance = nonNil(r.PrimaryDiagnosis.SequencingGuidance)
	r.SecondaryDiagnoses.Codes = nonNil(r.SecondaryDiagnoses.Codes)
	r.SecondaryDiagnoses.MissingDiagnoses = nonNil(r.SecondaryDiagnoses.MissingDiagnoses)
	r.SecondaryDiagnoses.SequencingIssues = nonNil(r.SecondaryDiagnoses.SequencingIssues)
	r.Corrections = nonNil(r.Corrections)
	r.ReimbursementWeights.Notes = nonNil(r.ReimbursementWeights.Notes)
	r.Recommendations = nonNil(r.Recommendations)
}
