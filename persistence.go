package autotune

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// envelopeVersion is bumped whenever the envelope layout changes.
const envelopeVersion = 1

// envelope is the persisted form of one model table entry. The model state
// itself is opaque: it is whatever the model's MarshalBinary produces.
type envelope struct {
	Version int           `json:"version"`
	Model   string        `json:"model"`
	Labeled bool          `json:"labeled"`
	Labels  LabelSet      `json:"labels,omitempty"`
	Params  Candidate     `json:"params"`
	Result  *TuningResult `json:"result,omitempty"`
	State   []byte        `json:"state"`
}

// encodeEntry serializes e for model type modelName.
func encodeEntry(modelName string, e *entry) ([]byte, error) {
	marshaler, ok := e.model.(encoding.BinaryMarshaler)
	if !ok {
		return nil, fmt.Errorf("model %q of type %T does not implement encoding.BinaryMarshaler", modelName, e.model)
	}

	state, err := marshaler.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal model state: %w", err)
	}

	env := envelope{
		Version: envelopeVersion,
		Model:   modelName,
		Labeled: e.labeled,
		Params:  e.params,
		Result:  e.result,
		State:   state,
	}

	if e.labeled {
		env.Labels = e.labels
	}

	return json.Marshal(env)
}

// decodeEntry restores an entry persisted by encodeEntry. The stored model
// type must be def.
func decodeEntry(def ModelDefinition, data []byte) (*entry, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", ErrValidation, env.Version)
	}

	if env.Model != def.Name {
		return nil, fmt.Errorf("%w: stored model type %q does not match configured %q", ErrValidation, env.Model, def.Name)
	}

	model, err := def.New(env.Params.Clone())
	if err != nil {
		return nil, fmt.Errorf("construct model: %w", err)
	}

	unmarshaler, ok := model.(encoding.BinaryUnmarshaler)
	if !ok {
		return nil, fmt.Errorf("model %q of type %T does not implement encoding.BinaryUnmarshaler", def.Name, model)
	}

	if err := unmarshaler.UnmarshalBinary(env.State); err != nil {
		return nil, fmt.Errorf("unmarshal model state: %w", err)
	}

	labels := env.Labels
	if env.Labeled && labels == nil {
		labels = LabelSet{}
	}

	return &entry{
		labels:  labels,
		labeled: env.Labeled,
		model:   model,
		params:  env.Params,
		result:  env.Result,
	}, nil
}
