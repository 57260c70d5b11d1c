package tools

// ValidationKind classifies the preflight outcome.
type ValidationKind int

const (
	ValidationValid ValidationKind = iota
	ValidationMissingFields
	ValidationUnknownTool
)

// ValidationOutcome is the result of checking a call's arguments against the
// tool's declared required fields. It never errors; every input resolves to
// one of the three kinds.
type ValidationOutcome struct {
	Kind ValidationKind
	// MissingFields preserves schema declaration order for deterministic
	// error messages.
	MissingFields []string
}

func (vo ValidationOutcome) IsValid() bool {
	return vo.Kind == ValidationValid
}

// Preflight validates normalized arguments against a tool definition before
// any side-effecting execution. A nil definition means the tool is unknown.
// Irrecoverable arguments count as "no fields present", so every required
// field is reported missing. Tools with an empty required list accept
// anything.
func Preflight(def *ToolDefinition, args NormalizedArguments) ValidationOutcome {
	if def == nil {
		return ValidationOutcome{Kind: ValidationUnknownTool}
	}

	required := def.RequiredFields()
	if len(required) == 0 {
		return ValidationOutcome{Kind: ValidationValid}
	}

	var missing []string
	for _, field := range required {
		if args.Irrecoverable {
			missing = append(missing, field)
			continue
		}
		if _, ok := args.Value[field]; !ok {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		return ValidationOutcome{Kind: ValidationMissingFields, MissingFields: missing}
	}
	return ValidationOutcome{Kind: ValidationValid}
}
