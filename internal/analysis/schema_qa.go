package analysis

// QAReviewResults is the quality-assurance review payload.
type QAReviewResults struct {
	PatientInfo          PatientInfo          `json:"patientInfo"`
	DocumentInfo         DocumentInfo         `json:"documentInfo"`
	ComplianceReview     ComplianceReview     `json:"complianceReview"`
	DocumentationQuality DocumentationQuality `json:"documentationQuality"`
	ClinicalConsistency  ClinicalConsistency  `json:"clinicalConsistency"`
	AssessmentItems      []AssessmentItem     `json:"assessmentItems"`
	RiskFlags            []RiskFlag           `json:"riskFlags"`
	Recommendations      []Recommendation     `json:"recommendations"`
	Summary              QASummary            `json:"summary"`
}

type DocumentInfo struct {
	DocumentType string `json:"documentType"`
	VisitDate    string `json:"visitDate"`
	Clinician    string `json:"clinician"`
	Discipline   string `json:"discipline"`
}

type ComplianceReview struct {
	OverallStatus string              `json:"overallStatus"`
	Score         float64             `json:"score"`
	Findings      []ComplianceFinding `json:"findings"`
}

type ComplianceFinding struct {
	Area        string `json:"area"`
	Requirement string `json:"requirement"`
	Status      string `json:"status"`
	Evidence    string `json:"evidence"`
	Severity    string `json:"severity"`
}

type DocumentationQuality struct {
	CompletenessScore float64            `json:"completenessScore"`
	ClarityScore      float64            `json:"clarityScore"`
	Strengths         []string           `json:"strengths"`
	Gaps              []DocumentationGap `json:"gaps"`
}

type DocumentationGap struct {
	Section        string `json:"section"`
	Issue          string `json:"issue"`
	Impact         string `json:"impact"`
	Recommendation string `json:"recommendation"`
}

type ClinicalConsistency struct {
	Inconsistencies []ClinicalInconsistency `json:"inconsistencies"`
	MissingElements []string                `json:"missingElements"`
}

type ClinicalInconsistency struct {
	Elements    []string `json:"elements"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
}

// AssessmentItem compares a reported assessment answer with what the narrative supports.
type AssessmentItem struct {
	Item           string `json:"item"`
	ReportedValue  string `json:"reportedValue"`
	SupportedValue string `json:"supportedValue"`
	Status         string `json:"status"`
	Rationale      string `json:"rationale"`
}

type RiskFlag struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

type QASummary struct {
	OverallScore     float64 `json:"overallScore"`
	TotalFindings    int     `json:"totalFindings"`
	CriticalFindings int     `json:"criticalFindings"`
	ItemsReviewed    int     `json:"itemsReviewed"`
	ItemsSupported   int     `json:"itemsSupported"`
	ReviewOutcome    string  `json:"reviewOutcome"`
}

// EmptyQAReview returns the canonical empty QA review payload.
func EmptyQAReview() *QAReviewResults {
	r := &QAReviewResults{}
	r.normalize()
	return r
}

func (r *QAReviewResults) AnalysisType() Type { return TypeQAReview }

func (r *QAReviewResults) normalize() {
	r.ComplianceReview.Findings = nonNil(r.ComplianceReview.Findings)
	r.DocumentationQuality.Strengths = nonNil(r.DocumentationQuality.Strengths)
	r.DocumentationQuality.Gaps = nonNil(r.DocumentationQuality.Gaps)
	r.ClinicalConsistency.Inconsistencies = nonNil(r.ClinicalConsistency.Inconsistencies)
	for i := range r.ClinicalConsistency.Inconsistencies {
		inc := &r.ClinicalConsistency.Inconsistencies[i]
		inc.Elements = nonNil(inc.Elements)
	}
	r.ClinicalConsistency.MissingElements = nonNil(r.ClinicalConsistency.MissingElements)
	r.AssessmentItems = nonNil(r.AssessmentItems)
	r.RiskFlags = nonNil(r.RiskFlags)
	r.Recommendations = nonNil(r.Recommendations)
}
