package events

import (
	"encoding/json"
	"time"
)

// Event es el evento de dominio ya decodificado desde el log.
// ID es el identificador asignado por el stream (p. ej. "1692200000000-0").
type Event struct {
	ID      string
	Type    string
	Payload map[string]interface{}
}

// TaskJob es el trabajo que se entrega a la cola asíncrona secundaria.
type TaskJob struct {
	EventID      string                 `json:"event_id"`
	EventType    string                 `json:"event_type"`
	Payload      map[string]interface{} `json:"payload"`
	DispatchedAt time.Time              `json:"dispatched_at"`
}

// PartitionKey permite a los adapters particionar por evento (Kafka).
func (j TaskJob) PartitionKey() string {
	return j.EventID
}

// NewTaskJob construye el job a partir de un evento ya aplicado.
func NewTaskJob(evt Event) TaskJob {
	return TaskJob{
		EventID:      evt.ID,
		EventType:    evt.Type,
		Payload:      evt.Payload,
		DispatchedAt: time.Now().UTC(),
	}
}

// DecodeTaskJob es el inverso de json.Marshal(TaskJob), usado por los consumidores del job.
func DecodeTaskJob(data []byte) (TaskJob, error) {
	var job TaskJob
	if err := json.Unmarshal(data, &job); err != nil {
		return TaskJob{}, err
	}
	return job, nil
}
