package db

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Job states.
const (
	JobStateUnprocessed = "unprocessed"
	JobStateActive      = "active"
	JobStateRejected    = "rejected"
)

// Job message levels.
const (
	MessageLevelStatus  = "status"
	MessageLevelDebug   = "debug"
	MessageLevelWarning = "warning"
	MessageLevelError   = "error"
)

// Job maps transync.jobs.
type Job struct {
	JobID       int64      `gorm:"column:job_id;primaryKey;autoIncrement"`
	JobUUID     string     `gorm:"column:job_uuid;size:36;not null;uniqueIndex"`
	Label       string     `gorm:"column:label;type:text;not null;default:''"`
	SourceLang  string     `gorm:"column:source_lang;type:text;not null"`
	TargetLang  string     `gorm:"column:target_lang;type:text;not null"`
	Tier        string     `gorm:"column:tier;type:text;not null;default:standard"`
	Comment     string     `gorm:"column:comment;type:text;not null;default:''"`
	State       string     `gorm:"column:state;type:text;not null;default:unprocessed;index"`
	SubmittedAt *time.Time `gorm:"column:submitted_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;not null"`

	Items []JobItem `gorm:"foreignKey:JobID;references:JobID"`
}

func (j *Job) BeforeCreate(_ *gorm.DB) error {
	if strings.TrimSpace(j.JobUUID) == "" {
		j.JobUUID = uuid.NewString()
	}
	if strings.TrimSpace(j.State) == "" {
		j.State = JobStateUnprocessed
	}
	return nil
}

// JobItem maps transync.job_items.
type JobItem struct {
	JobItemID int64     `gorm:"column:job_item_id;primaryKey;autoIncrement"`
	JobID     int64     `gorm:"column:job_id;not null;index"`
	Label     string    `gorm:"column:label;type:text;not null;default:''"`
	Position  int       `gorm:"column:position;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`

	DataItems []DataItem `gorm:"foreignKey:JobItemID;references:JobItemID"`
}

// DataItem maps transync.data_items. A nil Translate means "translate";
// only an explicit false skips the item.
type DataItem struct {
	DataItemID     int64      `gorm:"column:data_item_id;primaryKey;autoIncrement"`
	JobItemID      int64      `gorm:"column:job_item_id;not null;uniqueIndex:data_items_item_path_key,priority:1"`
	Path           string     `gorm:"column:path;type:text;not null;uniqueIndex:data_items_item_path_key,priority:2"`
	Label          string     `gorm:"column:label;type:text;not null;default:''"`
	SourceText     string     `gorm:"column:source_text;type:text;not null"`
	Translate      *bool      `gorm:"column:translate"`
	TranslatedText *string    `gorm:"column:translated_text;type:text"`
	TranslatedAt   *time.Time `gorm:"column:translated_at"`
	Position       int        `gorm:"column:position;not null;default:0"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;not null"`
}

// Translatable reports whether the item takes part in submissions.
func (d DataItem) Translatable() bool {
	return d.Translate == nil || *d.Translate
}

// JobMessage maps transync.job_messages.
type JobMessage struct {
	JobMessageID int64     `gorm:"column:job_message_id;primaryKey;autoIncrement"`
	JobID        int64     `gorm:"column:job_id;not null;index"`
	Level        string    `gorm:"column:level;type:text;not null;default:status"`
	Message      string    `gorm:"column:message;type:text;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

// RemoteData is provider metadata kept on a remote mapping. Duplicates lists
// the "<job_item_id>][<path>" keys that share this mapping's source text.
type RemoteData struct {
	Credits    float64  `json:"credits,omitempty"`
	Tier       string   `json:"tier,omitempty"`
	Duplicates []string `json:"duplicates,omitempty"`
}

// RemoteMapping maps transync.remote_mappings. RemoteJobID is empty until the
// provider has assigned a concrete job, and stays empty for machine
// translations that never get one.
type RemoteMapping struct {
	RemoteMappingID   int64      `gorm:"column:remote_mapping_id;primaryKey;autoIncrement"`
	RemoteMappingUUID string     `gorm:"column:remote_mapping_uuid;size:36;not null;uniqueIndex"`
	JobID             int64      `gorm:"column:job_id;not null;index:remote_mappings_local_key_idx,priority:1"`
	JobItemID         int64      `gorm:"column:job_item_id;not null;index:remote_mappings_local_key_idx,priority:2"`
	DataItemPath      string     `gorm:"column:data_item_path;type:text;not null;index:remote_mappings_local_key_idx,priority:3"`
	RemoteOrderID     string     `gorm:"column:remote_order_id;type:text;not null;default:''"`
	RemoteJobID       string     `gorm:"column:remote_job_id;type:text;not null;default:'';index"`
	WordCount         int64      `gorm:"column:word_count;not null;default:0"`
	RemoteData        RemoteData `gorm:"column:remote_data;type:text;serializer:json"`
	CreatedAt         time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;not null"`
}

func (m *RemoteMapping) BeforeCreate(_ *gorm.DB) error {
	if strings.TrimSpace(m.RemoteMappingUUID) == "" {
		m.RemoteMappingUUID = uuid.NewString()
	}
	return nil
}

// IsPlaceholder reports whether the mapping still waits for a remote job id.
func (m RemoteMapping) IsPlaceholder() bool {
	return m.RemoteOrderID != "" && m.RemoteJobID == ""
}
