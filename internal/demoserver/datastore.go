package demoserver

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/defectscan/defectscan-go/internal/errors"
)

// Project is the persisted project row. The JSON tags match the wire contract
// consumed by the client.
type Project struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Defect is the persisted defect record row.
type Defect struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	Filename   string    `json:"filename"`
	Caption    string    `json:"caption"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
	ImagePath  string    `json:"image_path"`
	Room       string    `gorm:"default:General" json:"room,omitempty"`
	Severity   string    `gorm:"default:Low" json:"severity,omitempty"`
	ProjectID  int64     `gorm:"index" json:"project_id,omitempty"`
}

// DataStore wraps the demo server's SQLite database.
type DataStore struct {
	DB *gorm.DB
}

// OpenDataStore opens (and migrates) the demo database under dataPath.
func OpenDataStore(dataPath string) (*DataStore, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, errors.Newf("failed to create demo data directory: %w", err).
			Category(errors.CategoryFileIO).
			Context("path", dataPath).
			Component("demoserver").
			Build()
	}

	dbPath := filepath.Join(dataPath, "defects.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Newf("failed to open demo database: %w", err).
			Category(errors.CategoryDatabase).
			Context("path", dbPath).
			Component("demoserver").
			Build()
	}

	if err := db.AutoMigrate(&Project{}, &Defect{}); err != nil {
		return nil, errors.Newf("failed to migrate demo database: %w", err).
			Category(errors.CategoryDatabase).
			Context("path", dbPath).
			Component("demoserver").
			Build()
	}

	return &DataStore{DB: db}, nil
}

// ListProjects returns all projects, oldest first.
func (ds *DataStore) ListProjects() ([]Project, error) {
	var projects []Project
	if err := ds.DB.Order("id asc").Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// GetProject fetches a project by id; nil if absent.
func (ds *DataStore) GetProject(id int64) (*Project, error) {
	var project Project
	err := ds.DB.First(&project, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// CreateProject inserts a project.
func (ds *DataStore) CreateProject(project *Project) error {
	return ds.DB.Create(project).Error
}

// DeleteProject removes a project and its defect records in one transaction.
func (ds *DataStore) DeleteProject(id int64) (bool, error) {
	var deleted bool
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&Project{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		deleted = true
		return tx.Where("project_id = ?", id).Delete(&Defect{}).Error
	})
	return deleted, err
}

// ListDefects returns defect records, newest first, optionally scoped to a
// project.
func (ds *DataStore) ListDefects(projectID int64) ([]Defect, error) {
	query := ds.DB.Order("timestamp desc")
	if projectID != 0 {
		query = query.Where("project_id = ?", projectID)
	}
	var defects []Defect
	if err := query.Find(&defects).Error; err != nil {
		return nil, err
	}
	return defects, nil
}

// GetDefect fetches a defect by id; nil if absent.
func (ds *DataStore) GetDefect(id int64) (*Defect, error) {
	var defect Defect
	err := ds.DB.First(&defect, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &defect, nil
}

// GetDefectsByIDs fetches the defects matching ids, newest first.
func (ds *DataStore) GetDefectsByIDs(ids []int64) ([]Defect, error) {
	var defects []Defect
	if err := ds.DB.Where("id IN ?", ids).Order("timestamp desc").Find(&defects).Error; err != nil {
		return nil, err
	}
	return defects, nil
}

// CreateDefect inserts a defect record.
func (ds *DataStore) CreateDefect(defect *Defect) error {
	return ds.DB.Create(defect).Error
}

// UpdateDefect applies the given column updates to a defect.
func (ds *DataStore) UpdateDefect(id int64, updates map[string]any) (*Defect, error) {
	defect, err := ds.GetDefect(id)
	if err != nil || defect == nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := ds.DB.Model(defect).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return ds.GetDefect(id)
}

// DeleteDefect removes a defect row. Reports whether a row was deleted.
func (ds *DataStore) DeleteDefect(id int64) (bool, error) {
	result := ds.DB.Delete(&Defect{}, id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CountRows returns the number of projects and defects, for the status probe.
func (ds *DataStore) CountRows() (projects, defects int64) {
	ds.DB.Model(&Project{}).Count(&projects)
	ds.DB.Model(&Defect{}).Count(&defects)
	return projects, defects
}

// Close closes the underlying database handle.
func (ds *DataStore) Close() error {
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.Close()
}
