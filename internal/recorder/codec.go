package recorder

import (
	"encoding/json"
	"errors"
)

const CurrentSchemaVersion = 1

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeRun(r RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (RunRecord, error) {
	var run RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return RunRecord{}, err
	}
	if run.SchemaVersion != CurrentSchemaVersion {
		return RunRecord{}, ErrVersionMismatch
	}
	return run, nil
}

func EncodeCycles(cycles []CycleRecord) ([]byte, error) {
	return json.Marshal(cycles)
}

func DecodeCycles(data []byte) ([]CycleRecord, error) {
	var cycles []CycleRecord
	if err := json.Unmarshal(data, &cycles); err != nil {
		return nil, err
	}
	return cycles, nil
}

func EncodeCommands(records []CommandRecord) ([]byte, error) {
	return json.Marshal(records)
}

func DecodeCommands(data []byte) ([]CommandRecord, error) {
	var records []CommandRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func EncodeRewards(rewards []RewardRecord) ([]byte, error) {
	return json.Marshal(rewards)
}

func DecodeRewards(data []byte) ([]RewardRecord, error) {
	var rewards []RewardRecord
	if err := json.Unmarshal(data, &rewards); err != nil {
		return nil, err
	}
	return rewards, nil
}

func EncodeBaselines(baselines map[string][]float64) ([]byte, error) {
	return json.Marshal(baselines)
}

func DecodeBaselines(data []byte) (map[string][]float64, error) {
	var baselines map[string][]float64
	if err := json.Unmarshal(data, &baselines); err != nil {
		return nil, err
	}
	return baselines, nil
}
