// Package domain contains core business entities and types for individualized
// vancomycin dosing following the 2020 ASHP/IDSA consensus guideline on
// AUC-guided therapeutic monitoring.
//
// Reference: Rybak et al. (2020) Therapeutic monitoring of vancomycin for
// serious methicillin-resistant Staphylococcus aureus infections.
// Am J Health Syst Pharm. 77(11):835-864. doi: 10.1093/ajhp/zxaa036
package domain

// Gender represents the patient sex used by dosing formulas.
// Only the engine-relevant constants (the Cockcroft-Gault sex factor and the
// Devine base weight) hang off this type; display metadata belongs to the
// presentation layer.
type Gender string

const (
	MALE         Gender = "male"
	FEMALE       Gender = "female"
	OTHER_GENDER Gender = "other"
)

// PopulationType selects which population pharmacokinetic model applies.
type PopulationType string

const (
	ADULT     PopulationType = "adult"
	PEDIATRIC PopulationType = "pediatric"
	NEONATE   PopulationType = "neonate"
)

// Indication represents the infection being treated. Each indication maps to a
// fixed target AUC24 range; the tables are static domain constants.
type Indication string

const (
	PNEUMONIA        Indication = "pneumonia"
	SKIN_SOFT_TISSUE Indication = "skin_soft_tissue"
	BACTEREMIA       Indication = "bacteremia"
	ENDOCARDITIS     Indication = "endocarditis"
	MENINGITIS       Indication = "meningitis"
	OSTEOMYELITIS    Indication = "osteomyelitis"
	OTHER_INDICATION Indication = "other"
)

// InfectionSeverity scales the target AUC24 midpoint.
type InfectionSeverity string

const (
	MILD     InfectionSeverity = "mild"
	MODERATE InfectionSeverity = "moderate"
	SEVERE   InfectionSeverity = "severe"
)

// CrClMethod selects which weight term feeds the Cockcroft-Gault formula, or
// bypasses the formula entirely when a clinician supplies a measured value.
type CrClMethod string

const (
	IDEAL_BODY_WEIGHT    CrClMethod = "ideal_body_weight"
	TOTAL_BODY_WEIGHT    CrClMethod = "total_body_weight"
	ADJUSTED_BODY_WEIGHT CrClMethod = "adjusted_body_weight"
	CUSTOM_CRCL          CrClMethod = "custom"
)

// BMICategory is the adult BMI band. Pediatric and neonatal categorization
// requires age-dependent growth charts, so those populations report
// BMI_NOT_APPLICABLE rather than an adult-scale band.
type BMICategory string

const (
	UNDERWEIGHT        BMICategory = "underweight"
	NORMAL_WEIGHT      BMICategory = "normal"
	OVERWEIGHT         BMICategory = "overweight"
	OBESE              BMICategory = "obese"
	BMI_NOT_APPLICABLE BMICategory = "not_applicable"
)

// FitStatus reports the outcome of Bayesian parameter estimation.
type FitStatus string

const (
	FIT_PRIOR_ONLY     FitStatus = "PRIOR_ONLY"     // no observations, posterior == prior
	FIT_CONVERGED      FitStatus = "CONVERGED"      // MAP search met the step tolerance
	FIT_MAX_ITERATIONS FitStatus = "MAX_ITERATIONS" // iteration cap reached before tolerance
	FIT_CLIPPED        FitStatus = "CLIPPED"        // non-physical estimate clipped to floor
)

// OptimizationStatus reports the outcome of the dose search.
type OptimizationStatus string

const (
	REGIMEN_ON_TARGET    OptimizationStatus = "ON_TARGET"
	REGIMEN_OUT_OF_RANGE OptimizationStatus = "OUT_OF_RANGE"
)

// ConfidenceLevel represents qualitative confidence in an engine result.
type ConfidenceLevel string

const (
	HIGH   ConfidenceLevel = "High"
	MEDIUM ConfidenceLevel = "Medium"
	LOW    ConfidenceLevel = "Low"
)

// SafetyKind distinguishes advisory notes from warnings on a DosingResult.
type SafetyKind string

const (
	SAFETY_INFO    SafetyKind = "info"
	SAFETY_WARNING SafetyKind = "warning"
)

// IsValid validates the gender value. Critical for dosing software: the sex
// factor feeds directly into renal function estimation.
func (g Gender) IsValid() bool {
	switch g {
	case MALE, FEMALE, OTHER_GENDER:
		return true
	default:
		return false
	}
}

// String returns the string representation for logging and audit trails.
func (g Gender) String() string {
	return string(g)
}

// SexFactor returns the Cockcroft-Gault sex multiplier.
// 1.0 for male, 0.85 for female; the conservative 0.85 is used when the
// patient reports another gender.
func (g Gender) SexFactor() float64 {
	if g == MALE {
		return 1.0
	}
	return 0.85
}

// IsValid validates the population type.
func (pt PopulationType) IsValid() bool {
	switch pt {
	case ADULT, PEDIATRIC, NEONATE:
		return true
	default:
		return false
	}
}

// String returns the string representation of the population type.
func (pt PopulationType) String() string {
	return string(pt)
}

// IsValid validates the indication.
func (i Indication) IsValid() bool {
	switch i {
	case PNEUMONIA, SKIN_SOFT_TISSUE, BACTEREMIA, ENDOCARDITIS, MENINGITIS, OSTEOMYELITIS, OTHER_INDICATION:
		return true
	default:
		return false
	}
}

// String returns the string representation of the indication.
func (i Indication) String() string {
	return string(i)
}

// TargetRange returns the base AUC24 target band (mg·h/L) for the indication
// before severity scaling. Unknown indications fall back to the general
// 400-600 band, the guideline default for MIC = 1 mg/L.
func (i Indication) TargetRange() TargetRange {
	switch i {
	case ENDOCARDITIS, MENINGITIS, OSTEOMYELITIS:
		return TargetRange{Lower: 450, Upper: 600}
	case SKIN_SOFT_TISSUE:
		return TargetRange{Lower: 400, Upper: 550}
	default:
		// pneumonia, bacteremia, other
		return TargetRange{Lower: 400, Upper: 600}
	}
}

// IsValid validates the infection severity.
func (s InfectionSeverity) IsValid() bool {
	switch s {
	case MILD, MODERATE, SEVERE:
		return true
	default:
		return false
	}
}

// String returns the string representation of the severity.
func (s InfectionSeverity) String() string {
	return string(s)
}

// Multiplier returns the factor applied to the target AUC24 midpoint.
func (s InfectionSeverity) Multiplier() float64 {
	switch s {
	case MODERATE:
		return 1.1
	case SEVERE:
		return 1.2
	default:
		return 1.0
	}
}

// IsSerious reports whether the severity warrants a loading dose.
func (s InfectionSeverity) IsSerious() bool {
	return s == SEVERE
}

// IsValid validates the creatinine clearance method.
func (m CrClMethod) IsValid() bool {
	switch m {
	case IDEAL_BODY_WEIGHT, TOTAL_BODY_WEIGHT, ADJUSTED_BODY_WEIGHT, CUSTOM_CRCL:
		return true
	default:
		return false
	}
}

// String returns the string representation of the method.
func (m CrClMethod) String() string {
	return string(m)
}

// IsValid validates the BMI category.
func (b BMICategory) IsValid() bool {
	switch b {
	case UNDERWEIGHT, NORMAL_WEIGHT, OVERWEIGHT, OBESE, BMI_NOT_APPLICABLE:
		return true
	default:
		return false
	}
}

// IsValid validates the fit status.
func (fs FitStatus) IsValid() bool {
	switch fs {
	case FIT_PRIOR_ONLY, FIT_CONVERGED, FIT_MAX_ITERATIONS, FIT_CLIPPED:
		return true
	default:
		return false
	}
}

// String returns the string representation of the fit status.
func (fs FitStatus) String() string {
	return string(fs)
}

// LogFields returns structured logging fields for audit trails.
func (fs FitStatus) LogFields() map[string]any {
	return map[string]any{
		"fit_status":  string(fs),
		"is_valid":    fs.IsValid(),
		"used_levels": fs != FIT_PRIOR_ONLY,
		"is_degraded": fs == FIT_MAX_ITERATIONS || fs == FIT_CLIPPED,
	}
}

// IsValid validates the optimization status.
func (os OptimizationStatus) IsValid() bool {
	switch os {
	case REGIMEN_ON_TARGET, REGIMEN_OUT_OF_RANGE:
		return true
	default:
		return false
	}
}

// String returns the string representation of the optimization status.
func (os OptimizationStatus) String() string {
	return string(os)
}

// IsValid validates the confidence level.
func (cl ConfidenceLevel) IsValid() bool {
	switch cl {
	case HIGH, MEDIUM, LOW:
		return true
	default:
		return false
	}
}

// String returns the string representation of the confidence level.
func (cl ConfidenceLevel) String() string {
	return string(cl)
}

// IsValid validates the safety message kind.
func (k SafetyKind) IsValid() bool {
	switch k {
	case SAFETY_INFO, SAFETY_WARNING:
		return true
	default:
		return false
	}
}
