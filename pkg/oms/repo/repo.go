package repo

import (
	"gorm.io/gorm"
)

type IRepo interface {
	Sale() ISale
}

type Repo struct {
	journalDB *gorm.DB
}

func NewRepo(journalDB *gorm.DB) IRepo {
	return &Repo{
		journalDB: journalDB,
	}
}

func (r *Repo) Sale() ISale {
	return NewSaleSQLRepo(r.journalDB)
}
