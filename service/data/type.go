package data

import "github.com/khaledhikmat/vbg-go/model"

type IService interface {
	NewError(err interface{}) error
	NewSessionStats(stats model.SessionStats) error
	RetrieveSessionStats() ([]model.SessionStats, error)
}
