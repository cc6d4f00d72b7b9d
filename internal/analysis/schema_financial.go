package analysis

// FinancialOptimizationResults is the reimbursement optimization payload.
type FinancialOptimizationResults struct {
	PatientInfo         PatientInfo           `json:"patientInfo"`
	RevenueImpact       RevenueImpactAnalysis `json:"revenueImpact"`
	ServiceOptimization ServiceOptimization   `json:"serviceOptimization"`
	PaymentSources      PaymentSourceAnalysis `json:"paymentSources"`
	Recommendations     []Recommendation      `json:"recommendations"`
	Summary             FinancialSummary      `json:"summary"`
}

type RevenueImpactAnalysis struct {
	CurrentEstimatedRevenue   float64         `json:"currentEstimatedRevenue"`
	OptimizedEstimatedRevenue float64         `json:"optimizedEstimatedRevenue"`
	PotentialIncrease         float64         `json:"potentialIncrease"`
	Drivers                   []RevenueDriver `json:"drivers"`
}

type RevenueDriver struct {
	Factor          string  `json:"factor"`
	Description     string  `json:"description"`
	EstimatedImpact float64 `json:"estimatedImpact"`
}

type ServiceOptimization struct {
	CurrentVisitPlan   string               `json:"currentVisitPlan"`
	LowUtilizationRisk string               `json:"lowUtilizationRisk"`
	Opportunities      []ServiceOpportunity `json:"opportunities"`
}

type ServiceOpportunity struct {
	Discipline             string  `json:"discipline"`
	CurrentUtilization     string  `json:"currentUtilization"`
	RecommendedUtilization string  `json:"recommendedUtilization"`
	Rationale              string  `json:"rationale"`
	EstimatedImpact        float64 `json:"estimatedImpact"`
}

type PaymentSourceAnalysis struct {
	PrimaryPayer        string       `json:"primaryPayer"`
	SecondaryPayers     []string     `json:"secondaryPayers"`
	AuthorizationStatus string       `json:"authorizationStatus"`
	Issues              []PayerIssue `json:"issues"`
}

type PayerIssue struct {
	Payer          string `json:"payer"`
	Issue          string `json:"issue"`
	Recommendation string `json:"recommendation"`
}

type FinancialSummary struct {
	TotalOpportunities     int     `json:"totalOpportunities"`
	EstimatedEpisodeImpact float64 `json:"estimatedEpisodeImpact"`
	EstimatedAnnualImpact  float64 `json:"estimatedAnnualImpact"`
	RiskLevel              string  `json:"riskLevel"`
}

// EmptyFinancialOptimization returns the canonical empty financial optimization payload.
func EmptyFinancialOptimization() *FinancialOptimizationResults {
	r := &FinancialOptimizationResults{}
	r.normalize()
	return r
}

func (r *FinancialOptimizationResults) AnalysisType() Type { return TypeFinancialOptimization }

func (r *FinancialOptimizationResults) normalize() {
	r.RevenueImpact.Drivers = nonNil(r.RevenueImpact.Drivers)
	r.ServiceOptimization.Opportunities = nonNil(r.ServiceOptimization.Opportunities)
	r.PaymentSources.SecondaryPayers = nonNil(r.PaymentSources.SecondaryPayers)
	r.PaymentSources.Issues = nonNil(r.PaymentSources.Issues)
	r.Recommendations = nonNil(r.Recommendations)
}
