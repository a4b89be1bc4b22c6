package api

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"stormlens-backend/internal/database"
	"stormlens-backend/pkg/api"
)

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func convertDataset(d database.Dataset) api.Dataset {
	ds := api.Dataset{
		Id:             d.Id,
		Name:           d.Name,
		StorageType:    d.StorageType,
		Status:         d.Status,
		CreationTime:   d.CreationTime,
		CompletionTime: nullTime(d.CompletionTime),
		RecordCount:    d.RecordCount,
		TotalTasks:     d.TotalTasks,
		CompletedTasks: d.CompletedTasks,
		FailedTasks:    d.FailedTasks,
	}

	for _, e := range d.Errors {
		ds.Errors = append(ds.Errors, e.Error)
	}

	return ds
}

func convertDatasets(ds []database.Dataset) []api.Dataset {
	datasets := make([]api.Dataset, 0, len(ds))
	for _, d := range ds {
		datasets = append(datasets, convertDataset(d))
	}
	return datasets
}

func convertRecord(r database.TileRecord) api.TileRecord {
	return api.TileRecord{
		Path:  r.Path,
		Split: r.Split,
		Label: r.Label,
		Lon:   r.Lon,
		Lat:   r.Lat,
	}
}

func convertRecords(rs []database.TileRecord) []api.TileRecord {
	records := make([]api.TileRecord, 0, len(rs))
	for _, r := range rs {
		records = append(records, convertRecord(r))
	}
	return records
}

func convertSplitSummary(s database.SplitSummary) api.SplitSummary {
	return api.SplitSummary{
		Split:          s.Split,
		DamagedCount:   s.DamagedCount,
		UndamagedCount: s.UndamagedCount,
		MinLon:         s.MinLon,
		MaxLon:         s.MaxLon,
		MinLat:         s.MinLat,
		MaxLat:         s.MaxLat,
	}
}

func convertSplitSummaries(ss []database.SplitSummary) []api.SplitSummary {
	summaries := make([]api.SplitSummary, 0, len(ss))
	for _, s := range ss {
		summaries = append(summaries, convertSplitSummary(s))
	}
	return summaries
}

func convertClassifier(c database.Classifier) api.Classifier {
	clf := api.Classifier{
		Id:             c.Id,
		Name:           c.Name,
		Type:           c.Type,
		Status:         c.Status,
		CreationTime:   c.CreationTime,
		CompletionTime: nullTime(c.CompletionTime),
	}

	if c.BaseClassifierId.Valid {
		base := c.BaseClassifierId.UUID
		clf.BaseClassifierId = &base
	}

	return clf
}

func convertClassifiers(cs []database.Classifier) []api.Classifier {
	classifiers := make([]api.Classifier, 0, len(cs))
	for _, c := range cs {
		classifiers = append(classifiers, convertClassifier(c))
	}
	return classifiers
}

func convertAnalysis(j database.AnalysisJob) api.Analysis {
	return api.Analysis{
		Id:             j.Id,
		DatasetId:      j.DatasetId,
		Split:          j.Split,
		Query:          j.Query,
		Status:         j.Status,
		CreationTime:   j.CreationTime,
		CompletionTime: nullTime(j.CompletionTime),
	}
}

func convertEvaluation(e database.Evaluation) api.Evaluation {
	return api.Evaluation{
		Id:             e.Id,
		DatasetId:      e.DatasetId,
		ClassifierId:   e.ClassifierId,
		Split:          e.Split,
		Query:          e.Query,
		BatchSize:      e.BatchSize,
		Status:         e.Status,
		CreationTime:   e.CreationTime,
		CompletionTime: nullTime(e.CompletionTime),
		Loss:           e.Loss,
		Accuracy:       e.Accuracy,
		SampleCount:    e.SampleCount,
	}
}

func convertTrainingJob(j database.TrainingJob) api.TrainingJob {
	job := api.TrainingJob{
		Id:             j.Id,
		ClassifierId:   j.ClassifierId,
		DatasetId:      j.DatasetId,
		Epochs:         j.Epochs,
		Status:         j.Status,
		RemoteJobId:    j.RemoteJobId,
		CreationTime:   j.CreationTime,
		CompletionTime: nullTime(j.CompletionTime),
	}

	if len(j.History) > 0 {
		if err := json.Unmarshal(j.History, &job.History); err != nil {
			slog.Error("error parsing training history", "training_job_id", j.Id, "error", err)
		}
	}

	return job
}
