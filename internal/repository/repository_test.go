package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/staymarket/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var appealCols = []string{"id", "uid", "email", "display_name", "message", "status",
	"created_at", "updated_at", "reviewed_at", "reviewed_by"}

func appealRow(status model.AppealStatus) *sqlmock.Rows {
	return sqlmock.NewRows(appealCols).
		AddRow("u1", "u1", "u1@example.com", "Ann", "let me host", string(status), t0, t0, nil, nil)
}

func TestAppealDecideApproveGrantsHostInSameTx(t *testing.T) {
	db, mock := newMock(t)
	at := t0.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(qLockAppeal)).WithArgs("u1").WillReturnRows(appealRow(model.AppealPending))
	mock.ExpectQuery(regexp.QuoteMeta(qLockUser)).WithArgs("u1").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1"))
	mock.ExpectExec(regexp.QuoteMeta(qDecideAppeal)).
		WithArgs(model.AppealApproved, at, "admin-1", at, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(qGrantHostFlag)).WithArgs(at, "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a, err := NewAppealRepo(db).Decide(context.Background(), "u1", model.AppealApproved, "admin-1", at)
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != model.AppealApproved || a.ReviewedBy == nil || *a.ReviewedBy != "admin-1" {
		t.Fatalf("appeal = %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAppealDecideRollsBackWhenProfileMissing(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(qLockAppeal)).WithArgs("u1").WillReturnRows(appealRow(model.AppealPending))
	mock.ExpectQuery(regexp.QuoteMeta(qLockUser)).WithArgs("u1").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := NewAppealRepo(db).Decide(context.Background(), "u1", model.AppealApproved, "admin-1", t0)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAppealDecideTwiceIsRefused(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(qLockAppeal)).WithArgs("u1").WillReturnRows(appealRow(model.AppealDenied))
	mock.ExpectRollback()

	_, err := NewAppealRepo(db).Decide(context.Background(), "u1", model.AppealApproved, "admin-1", t0)
	var te *model.TransitionError
	if !errors.As(err, &te) || te.From != model.AppealDenied {
		t.Fatalf("err = %v, want TransitionError from denied", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAppealSubmitCreatesPending(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(qLockAppeal)).WithArgs("u1").WillReturnRows(sqlmock.NewRows(appealCols))
	mock.ExpectExec(regexp.QuoteMeta(qInsertAppeal)).
		WithArgs("u1", "u1", "u1@example.com", "Ann", "hi", model.AppealPending, t0, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a, err := NewAppealRepo(db).Submit(context.Background(), &model.HostAppeal{
		ID: "u1", UID: "u1", Email: "u1@example.com", DisplayName: "Ann", Message: "hi",
	}, t0)
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != model.AppealPending || !a.CreatedAt.Equal(t0) {
		t.Fatalf("appeal = %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAppealResubmitWhilePendingIsRefused(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(qLockAppeal)).WithArgs("u1").WillReturnRows(appealRow(model.AppealPending))
	mock.ExpectRollback()

	_, err := NewAppealRepo(db).Submit(context.Background(), &model.HostAppeal{ID: "u1", UID: "u1"}, t0)
	var te *model.TransitionError
	if !errors.As(err, &te) || te.From != model.AppealPending {
		t.Fatalf("err = %v", err)
	}
}

func booking() *model.Booking {
	return &model.Booking{
		ID: "b1", UID: "g1", ListingID: "l1",
		CheckIn: t0, CheckOut: t0.AddDate(0, 0, 2),
		Guests: 2, Nights: 2, PricePerNight: 80, TotalPrice: 160, ReservedAt: t0,
	}
}

func TestBookingCreate(t *testing.T) {
	cases := []struct {
		name  string
		setup func(sqlmock.Sqlmock)
		want  error
	}{
		{"inserted", func(m sqlmock.Sqlmock) {
			m.ExpectExec(regexp.QuoteMeta(qInsertBooking)).WillReturnResult(sqlmock.NewResult(0, 1))
		}, nil},
		{"price changed", func(m sqlmock.Sqlmock) {
			m.ExpectExec(regexp.QuoteMeta(qInsertBooking)).WillReturnResult(sqlmock.NewResult(0, 0))
			m.ExpectQuery(regexp.QuoteMeta(qListingPrice)).WithArgs("l1").
				WillReturnRows(sqlmock.NewRows([]string{"price"}).AddRow(95.0))
		}, ErrConflict},
		{"listing gone", func(m sqlmock.Sqlmock) {
			m.ExpectExec(regexp.QuoteMeta(qInsertBooking)).WillReturnResult(sqlmock.NewResult(0, 0))
			m.ExpectQuery(regexp.QuoteMeta(qListingPrice)).WithArgs("l1").
				WillReturnRows(sqlmock.NewRows([]string{"price"}))
		}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMock(t)
			tc.setup(mock)
			err := NewBookingRepo(db).Create(context.Background(), booking())
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	if classify(nil) != nil {
		t.Fatal("nil should stay nil")
	}
	if !errors.Is(classify(sql.ErrNoRows), ErrNotFound) {
		t.Fatal("no rows should be ErrNotFound")
	}
	if !errors.Is(classify(driver.ErrBadConn), ErrUnavailable) {
		t.Fatal("bad conn should be ErrUnavailable")
	}
	if !errors.Is(classify(context.DeadlineExceeded), ErrUnavailable) {
		t.Fatal("deadline should be ErrUnavailable")
	}
	other := errors.New("syntax")
	if classify(other) != other {
		t.Fatal("unknown errors pass through")
	}
	if !isDuplicate(&mysql.MySQLError{Number: mysqlDuplicateEntry}) {
		t.Fatal("1062 is a duplicate")
	}
}
