package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/khaledhikmat/vbg-go/model"
	"github.com/khaledhikmat/vbg-go/service/config"
)

type filesDBService struct {
	CfgSvc config.IService
	mu     sync.Mutex
}

func NewFilesDB(cfgsvc config.IService) IService {
	return &filesDBService{
		CfgSvc: cfgsvc,
	}
}

func (svc *filesDBService) NewError(err interface{}) error {
	// Determine if the error is custom
	var customErr model.CustomError
	switch e := err.(type) {
	case model.CustomError:
		customErr = e
	case error:
		if !errors.As(e, &customErr) {
			customErr = model.CustomError{
				Kind:       model.KindOf(e),
				Processor:  "N/A",
				Inner:      e,
				Message:    e.Error(),
				StackTrace: "N/A",
			}
		}
	default:
		customErr = model.CustomError{
			Kind:       model.KindFatal,
			Processor:  "N/A",
			Message:    fmt.Sprintf("%v", err),
			StackTrace: "N/A",
		}
	}

	inner := ""
	if customErr.Inner != nil {
		inner = customErr.Inner.Error()
	}

	// Create an error object to persist
	errorData := struct {
		Timestamp  int64                  `json:"timestamp"`
		Kind       model.ErrorKind        `json:"kind"`
		Processor  string                 `json:"processor"`
		Inner      string                 `json:"innerError"`
		Message    string                 `json:"message"`
		StackTrace string                 `json:"stackTrace"`
		Misc       map[string]interface{} `json:"misc"`
	}{
		Timestamp:  time.Now().Unix(),
		Kind:       customErr.Kind,
		Processor:  customErr.Processor,
		Inner:      inner,
		Message:    customErr.Message,
		StackTrace: customErr.StackTrace,
		Misc:       customErr.Misc,
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	return newEntity(errorData, "errors", svc.CfgSvc)
}

func (svc *filesDBService) NewSessionStats(stats model.SessionStats) error {
	stats.Timestamp = time.Now().Unix()

	svc.mu.Lock()
	defer svc.mu.Unlock()
	return newEntity(stats, "session-stats", svc.CfgSvc)
}

func (svc *filesDBService) RetrieveSessionStats() ([]model.SessionStats, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return retrieveEntities[model.SessionStats]("session-stats", svc.CfgSvc)
}

func newEntity[T any](entity T, filename string, cfgsvc config.IService) error {
	entities, err := retrieveEntities[T](filename, cfgsvc)
	if err != nil {
		return err
	}

	entities = append(entities, entity)

	data, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfgsvc.GetDataFolder(), 0755); err != nil {
		return err
	}

	// Write the JSON data to the file (with truncation)
	output := fmt.Sprintf("%s/%s.json", cfgsvc.GetDataFolder(), filename)
	return os.WriteFile(output, data, 0644)
}

func retrieveEntities[T any](filename string, cfgsvc config.IService) ([]T, error) {
	entities := []T{}

	data, err := os.ReadFile(fmt.Sprintf("%s/%s.json", cfgsvc.GetDataFolder(), filename))
	if err != nil {
		// WARNING: File not found, return empty slice
		return entities, nil
	}

	err = json.Unmarshal(data, &entities)
	if err != nil {
		return nil, err
	}

	return entities, nil
}
