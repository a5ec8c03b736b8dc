package model

import "time"

// Entity: именованная группа с упорядоченным набором полей
type Entity struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	AssociatedFieldIDs []string  `json:"associatedFieldIds"`
	Version            int64     `json:"version,omitempty"`
	CreatedAt          time.Time `json:"createdAt,omitzero"`
	UpdatedAt          time.Time `json:"updatedAt,omitzero"`
}

// HasField сообщает, привязано ли поле к сущности.
func (e Entity) HasField(fieldID string) bool {
	for _, id := range e.AssociatedFieldIDs {
		if id == fieldID {
			return true
		}
	}
	return false
}

// Field описывает атрибут, который собирается в форме
type Field struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Kind         Kind      `json:"-"`
	Required     bool      `json:"required"`
	ShowInTable  bool      `json:"showInTable"`
	ShowInReport bool      `json:"showInReport"`
	Version      int64     `json:"version,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitzero"`
	UpdatedAt    time.Time `json:"updatedAt,omitzero"`
}

// Record: запись с меткой времени, данные ключуются по ID поля
type Record struct {
	ID        string         `json:"id"`
	EntityID  string         `json:"entityId"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Version   int64          `json:"version,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt,omitzero"`
}

// Config: заголовок приложения
type Config struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	EntityTypeName string `json:"entityTypeName,omitempty"`
}

// Snapshot: полное состояние; формат экспорта/импорта и файлового хранилища
type Snapshot struct {
	Config   Config   `json:"config"`
	Entities []Entity `json:"entities"`
	Fields   []Field  `json:"fields"`
	Records  []Record `json:"records"`
}
