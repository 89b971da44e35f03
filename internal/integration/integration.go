// Package integration is the surface host systems touch. It adapts host
// validation results into events for the process-wide coordinator and
// exposes its advisory queries. Nothing here blocks a host operation,
// returns an error into one, or lets a panic escape into one.
package integration

import (
	"context"
	"time"

	"vlearn/internal/learning"
	"vlearn/internal/types"
)

// Extractor derives a validation outcome from a host result. Hosts with
// richer result shapes install their own.
type Extractor func(result interface{}, err error) (success bool, confidence float64)

// ExtractOutcome is the default Extractor: an error means failure, a bool
// result speaks for itself, and a result map is consulted for explicit
// "success" and "confidence" keys. Anything else counts as a success with
// neutral confidence.
func ExtractOutcome(result interface{}, err error) (bool, float64) {
	if err != nil {
		return false, 0.9
	}
	switch r := result.(type) {
	case bool:
		return r, 0.9
	case map[string]interface{}:
		success := true
		confidence := 0.5
		if v, ok := types.ExtractBool(r["success"]); ok {
			success = v
		}
		if v, ok := types.ExtractFloat(r["confidence"]); ok {
			confidence = types.ClampConfidence(v)
		}
		return success, confidence
	default:
		return true, 0.5
	}
}

// Capability embeds learning into a host validator. The zero value is
// usable and reports into the process-wide coordinator with the default
// outcome extraction.
type Capability struct {
	// SourceSystem names the host in recorded events. Empty is allowed;
	// events then carry the "unknown" source.
	SourceSystem string

	// Coordinator overrides the process-wide coordinator, mainly for tests.
	Coordinator *learning.Coordinator

	// Extract overrides the default outcome extraction.
	Extract Extractor
}

func (c *Capability) coordinator() *learning.Coordinator {
	if c.Coordinator != nil {
		return c.Coordinator
	}
	return learning.Default()
}

func (c *Capability) extract(result interface{}, err error) (bool, float64) {
	if c.Extract != nil {
		return c.Extract(result, err)
	}
	return ExtractOutcome(result, err)
}

// LearnFromValidationResult submits one host validation outcome. It is
// fire-and-forget and safe to call from any goroutine.
func (c *Capability) LearnFromValidationResult(eventType string, validationContext map[string]interface{}, result interface{}, err error) {
	success, confidence := c.extract(result, err)
	event := types.ValidationEvent{
		EventType:    eventType,
		SourceSystem: c.SourceSystem,
		Context:      validationContext,
		Success:      success,
		Confidence:   confidence,
		Timestamp:    time.Now().UTC(),
	}
	if resultMap, ok := result.(map[string]interface{}); ok {
		event.Result = resultMap
	}
	c.coordinator().LearnFromValidation(event)
}

// ValidationInsights asks for advisory insights on a context. Nil means
// the pipeline has nothing trustworthy to say.
func (c *Capability) ValidationInsights(ctx context.Context, queryContext map[string]interface{}) *types.ValidationInsights {
	return c.coordinator().GetValidationInsights(ctx, queryContext)
}

// ValidatorFunc is the host validation shape WrapValidator decorates.
type ValidatorFunc func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)

// WrapValidator returns a validator that behaves exactly like fn and
// additionally reports each outcome to the learning pipeline. The host sees
// fn's result and error untouched, whatever learning does.
func WrapValidator(name string, fn ValidatorFunc) ValidatorFunc {
	return WrapValidatorWith(name, fn, &Capability{SourceSystem: name})
}

// WrapValidatorWith is WrapValidator with an explicit capability, for hosts
// that need their own extraction or coordinator.
func WrapValidatorWith(name string, fn ValidatorFunc, capability *Capability) ValidatorFunc {
	return func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		result, err := fn(ctx, input)
		func() {
			defer func() { _ = recover() }()
			capability.LearnFromValidationResult(name, input, result, err)
		}()
		return result, err
	}
}

// LearnFromValidation submits a pre-built event to the process-wide
// coordinator.
func LearnFromValidation(event types.ValidationEvent) {
	learning.Default().LearnFromValidation(event)
}

// GetValidationInsights queries the process-wide coordinator.
func GetValidationInsights(ctx context.Context, queryContext map[string]interface{}) *types.ValidationInsights {
	return learning.Default().GetValidationInsights(ctx, queryContext)
}

// LearningHealth reports the process-wide coordinator's health snapshot.
func LearningHealth() types.HealthStatus {
	return learning.Default().HealthStatus()
}
