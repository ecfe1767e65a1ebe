package audit

import (
	"context"
	"fmt"
	"strings"
)

// Reader menyediakan query timeline yang dibutuhkan service.
type Reader interface {
	AuditWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Entry, error)
}

// Service mengoordinasikan pengambilan data audit.
type Service struct {
	repo Reader
}

// NewService membuat service audit timeline baru.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// Timeline mengambil data audit dengan paging.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	filters.TableName = strings.TrimSpace(filters.TableName)
	filters.RecordID = strings.TrimSpace(filters.RecordID)
	filters.Action = strings.ToUpper(strings.TrimSpace(filters.Action))
	offset := (page - 1) * pageSize
	rows, err := s.repo.AuditWindow(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}
