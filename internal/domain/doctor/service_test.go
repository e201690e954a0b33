package doctor

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chela967/medicare/internal/platform/audit"
	"github.com/chela967/medicare/internal/platform/auth"
	"github.com/chela967/medicare/internal/platform/blobstore"
	"github.com/chela967/medicare/internal/platform/notification"
	"github.com/chela967/medicare/internal/platform/validation"
)

// -- Mock Repositories --

type mockDoctorRepo struct {
	items     map[int64]*Doctor
	nextID    int64
	createErr error
	reviewErr error
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{items: make(map[int64]*Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	d.ID = m.nextID
	d.CreatedAt = time.Now()
	m.items[d.ID] = d
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id int64) (*Doctor, error) {
	d, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDoctorRepo) GetByUserID(_ context.Context, userID int64) (*Doctor, error) {
	for _, d := range m.items {
		if d.UserID == userID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockDoctorRepo) List(_ context.Context, status string, limit, offset int) ([]*Doctor, int, error) {
	var result []*Doctor
	for _, d := range m.items {
		if status == "" || d.Status == status {
			result = append(result, d)
		}
	}
	return result, len(result), nil
}

func (m *mockDoctorRepo) ListBookable(_ context.Context, f DirectoryFilter) ([]*Doctor, error) {
	var result []*Doctor
	for _, d := range m.items {
		if d.Bookable() {
			result = append(result, d)
		}
	}
	return result, nil
}

func (m *mockDoctorRepo) LockPending(_ context.Context, id int64) (*Doctor, error) {
	d, ok := m.items[id]
	if !ok || d.Status != StatusPending {
		return nil, ErrNotPending
	}
	cp := *d
	return &cp, nil
}

func (m *mockDoctorRepo) SetReview(_ context.Context, r Review) error {
	if m.reviewErr != nil {
		return m.reviewErr
	}
	d := m.items[r.DoctorID]
	d.Status = r.Status
	d.ApprovedBy = &r.ReviewerID
	d.RejectionReason = r.Reason
	if r.ClearDocs {
		d.VerificationDocs = ""
	}
	return nil
}

func (m *mockDoctorRepo) UpdateProfile(_ context.Context, d *Doctor) error {
	cur, ok := m.items[d.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Qualifications, cur.Bio, cur.ConsultationFee, cur.Available = d.Qualifications, d.Bio, d.ConsultationFee, d.Available
	return nil
}

func (m *mockDoctorRepo) CountByStatus(_ context.Context) (map[string]int, error) {
	out := map[string]int{}
	for _, d := range m.items {
		out[d.Status]++
	}
	return out, nil
}

type mockSpecialtyRepo struct {
	items map[int64]*Specialty
	inUse map[int64]bool
}

func newMockSpecialtyRepo() *mockSpecialtyRepo {
	return &mockSpecialtyRepo{
		items: map[int64]*Specialty{1: {ID: 1, Name: "Cardiology"}},
		inUse: map[int64]bool{},
	}
}

func (m *mockSpecialtyRepo) List(_ context.Context) ([]*Specialty, error) {
	var out []*Specialty
	for _, s := range m.items {
		out = append(out, s)
	}
	return out, nil
}

func (m *mockSpecialtyRepo) GetByID(_ context.Context, id int64) (*Specialty, error) {
	s, ok := m.items[id]
	if !ok {
		return nil, ErrSpecialtyNotFound
	}
	return s, nil
}

func (m *mockSpecialtyRepo) Create(_ context.Context, s *Specialty) error {
	for _, existing := range m.items {
		if existing.Name == s.Name {
			return ErrSpecialtyExists
		}
	}
	s.ID = int64(len(m.items) + 1)
	m.items[s.ID] = s
	return nil
}

func (m *mockSpecialtyRepo) Delete(_ context.Context, id int64) error {
	if m.inUse[id] {
		return ErrSpecialtyInUse
	}
	if _, ok := m.items[id]; !ok {
		return ErrSpecialtyNotFound
	}
	delete(m.items, id)
	return nil
}

type mockAccounts struct {
	emails map[string]int64
	nextID int64
}

func (m *mockAccounts) CreateDoctorUser(_ context.Context, name, email, phone, hash string) (int64, error) {
	if _, ok := m.emails[email]; ok {
		return 0, ErrEmailTaken
	}
	m.nextID++
	m.emails[email] = m.nextID
	return m.nextID, nil
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type testDeps struct {
	doctors     *mockDoctorRepo
	specialties *mockSpecialtyRepo
	accounts    *mockAccounts
	files       *blobstore.MemoryStore
	audit       *audit.MemoryRecorder
	mail        *notification.MockEmailSender
}

func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	policy, err := auth.NewCasbinPolicy(auth.DefaultGrants)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	d := &testDeps{
		doctors:     newMockDoctorRepo(),
		specialties: newMockSpecialtyRepo(),
		accounts:    &mockAccounts{emails: map[string]int64{}, nextID: 100},
		files:       blobstore.NewMemoryStore(),
		audit:       &audit.MemoryRecorder{},
		mail:        &notification.MockEmailSender{},
	}
	notifier := notification.NewNotifier(d.mail, notification.NewTemplateEngine(), zerolog.Nop())
	svc := NewService(d.doctors, d.specialties, d.accounts, d.files, passthroughTx{}, policy, d.audit,
		notifier, "http://clinic.test", zerolog.Nop())
	return svc, d
}

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")

func uploadHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("verification_docs", name)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	w.Close()
	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(10 << 20)
	if err != nil {
		t.Fatal(err)
	}
	return form.File["verification_docs"][0]
}

func validDoctorInput() RegisterInput {
	return RegisterInput{
		Name:            "Gregory House",
		Email:           "house@example.com",
		Phone:           "+1 555 0199",
		Password:        "vicodin-123",
		ConfirmPassword: "vicodin-123",
		SpecialtyID:     1,
		LicenseNumber:   "MD-4471",
		Qualifications:  "MD, Johns Hopkins",
		ConsultationFee: 150,
	}
}

func seedPending(d *testDeps, key string) *Doctor {
	doc := &Doctor{UserID: 50, Name: "Pending Doc", Email: "pending@example.com", Status: StatusPending, VerificationDocs: key}
	d.doctors.Create(context.Background(), doc)
	if key != "" {
		d.files.Put(context.Background(), key, bytes.NewReader(pdfBytes), int64(len(pdfBytes)), "application/pdf")
	}
	return doc
}

var admin = auth.Actor{UserID: 1, Role: auth.RoleAdmin, Name: "Admin"}

// -- Registration --

func TestRegister(t *testing.T) {
	svc, d := newTestService(t)
	doc, err := svc.Register(context.Background(), validDoctorInput(), uploadHeader(t, "License Scan.pdf", pdfBytes))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Status != StatusPending {
		t.Errorf("expected pending, got %s", doc.Status)
	}
	if doc.UserID != 101 {
		t.Errorf("expected user id from accounts, got %d", doc.UserID)
	}
	if !d.files.Has(doc.VerificationDocs) {
		t.Errorf("expected document %q to be stored", doc.VerificationDocs)
	}
}

func TestRegister_CleansUpFileOnFailure(t *testing.T) {
	svc, d := newTestService(t)
	d.doctors.createErr = errors.New("insert failed")

	_, err := svc.Register(context.Background(), validDoctorInput(), uploadHeader(t, "license.pdf", pdfBytes))
	if err == nil {
		t.Fatal("expected error")
	}
	if n := len(d.files.Keys()); n != 0 {
		t.Errorf("expected uploaded file to be removed, %d left", n)
	}
}

func TestRegister_Rejections(t *testing.T) {
	svc, d := newTestService(t)
	d.accounts.emails["house@example.com"] = 9

	if _, err := svc.Register(context.Background(), validDoctorInput(), uploadHeader(t, "license.pdf", pdfBytes)); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}

	in := validDoctorInput()
	in.Email = "other@example.com"
	if _, err := svc.Register(context.Background(), in, nil); !errors.Is(err, blobstore.ErrNoFile) {
		t.Errorf("expected ErrNoFile, got %v", err)
	}
	if _, err := svc.Register(context.Background(), in, uploadHeader(t, "license.exe", pdfBytes)); !errors.Is(err, blobstore.ErrInvalidType) {
		t.Errorf("expected ErrInvalidType, got %v", err)
	}

	in.LicenseNumber = ""
	var verrs validation.Errors
	if _, err := svc.Register(context.Background(), in, uploadHeader(t, "license.pdf", pdfBytes)); !errors.As(err, &verrs) {
		t.Errorf("expected validation errors, got %v", err)
	}

	in = validDoctorInput()
	in.Email = "third@example.com"
	in.SpecialtyID = 42
	if _, err := svc.Register(context.Background(), in, uploadHeader(t, "license.pdf", pdfBytes)); !errors.Is(err, ErrSpecialtyNotFound) {
		t.Errorf("expected ErrSpecialtyNotFound, got %v", err)
	}
	if n := len(d.files.Keys()); n != 0 {
		t.Errorf("expected no stored files, got %d", n)
	}
}

// -- Approval workflow --

func TestApprove(t *testing.T) {
	svc, d := newTestService(t)
	doc := seedPending(d, "doctors/verification/a_1.pdf")

	if err := svc.Approve(context.Background(), admin, doc.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := d.doctors.items[doc.ID]
	if got.Status != StatusApproved || got.ApprovedBy == nil || *got.ApprovedBy != admin.UserID {
		t.Errorf("unexpected doctor after approval: %+v", got)
	}
	if len(d.audit.Entries) != 1 || d.audit.Entries[0].Action != audit.ActionDoctorApproved {
		t.Errorf("expected approval audit entry, got %+v", d.audit.Entries)
	}
	calls := d.mail.Calls()
	if len(calls) != 1 || calls[0].To != "pending@example.com" {
		t.Errorf("expected approval email, got %+v", calls)
	}
	if !d.files.Has("doctors/verification/a_1.pdf") {
		t.Error("approval must keep the verification document")
	}
}

func TestApprove_NotPendingIsNoop(t *testing.T) {
	for _, status := range []string{StatusApproved, StatusRejected} {
		t.Run(status, func(t *testing.T) {
			svc, d := newTestService(t)
			doc := seedPending(d, "")
			d.doctors.items[doc.ID].Status = status

			err := svc.Approve(context.Background(), admin, doc.ID)
			if !errors.Is(err, ErrNotPending) {
				t.Fatalf("expected ErrNotPending, got %v", err)
			}
			if d.doctors.items[doc.ID].Status != status {
				t.Error("status must not change")
			}
			if len(d.audit.Entries) != 0 || len(d.mail.Calls()) != 0 {
				t.Error("no audit entry or email expected")
			}
		})
	}
}

func TestApprove_EmailFailureDoesNotRollBack(t *testing.T) {
	svc, d := newTestService(t)
	d.mail.ShouldFail = true
	doc := seedPending(d, "")

	if err := svc.Approve(context.Background(), admin, doc.ID); err != nil {
		t.Fatalf("email failure must not fail approval: %v", err)
	}
	if d.doctors.items[doc.ID].Status != StatusApproved {
		t.Error("expected approved status")
	}
}

func TestApprove_AuditFailureAborts(t *testing.T) {
	svc, d := newTestService(t)
	d.audit.Err = errors.New("audit down")
	doc := seedPending(d, "")

	if err := svc.Approve(context.Background(), admin, doc.ID); err == nil {
		t.Fatal("expected error")
	}
	if len(d.mail.Calls()) != 0 {
		t.Error("no email expected when the transaction fails")
	}
}

func TestApprove_Forbidden(t *testing.T) {
	svc, d := newTestService(t)
	doc := seedPending(d, "")
	doctor := auth.Actor{UserID: 5, Role: auth.RoleDoctor, DoctorID: 3}

	if err := svc.Approve(context.Background(), doctor, doc.ID); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if d.doctors.items[doc.ID].Status != StatusPending {
		t.Error("status must not change")
	}
}

func TestReject(t *testing.T) {
	svc, d := newTestService(t)
	key := "doctors/verification/b_1.pdf"
	doc := seedPending(d, key)

	if err := svc.Reject(context.Background(), admin, doc.ID, "  "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := d.doctors.items[doc.ID]
	if got.Status != StatusRejected || got.RejectionReason != defaultRejectReason {
		t.Errorf("unexpected doctor after rejection: %+v", got)
	}
	if got.VerificationDocs != "" {
		t.Error("expected document reference to be cleared")
	}
	if d.files.Has(key) {
		t.Error("expected verification document to be deleted")
	}
	if len(d.audit.Entries) != 1 || d.audit.Entries[0].Action != audit.ActionDoctorRejected {
		t.Errorf("expected rejection audit entry, got %+v", d.audit.Entries)
	}
}

func TestReject_FailureKeepsDocument(t *testing.T) {
	svc, d := newTestService(t)
	key := "doctors/verification/c_1.pdf"
	doc := seedPending(d, key)
	d.doctors.reviewErr = errors.New("update failed")

	if err := svc.Reject(context.Background(), admin, doc.ID, "expired license"); err == nil {
		t.Fatal("expected error")
	}
	if !d.files.Has(key) {
		t.Error("document must survive a failed rejection")
	}
}

func TestGetBookable(t *testing.T) {
	svc, d := newTestService(t)
	doc := seedPending(d, "")
	if _, err := svc.GetBookable(context.Background(), doc.ID); !errors.Is(err, ErrNotBookable) {
		t.Errorf("expected ErrNotBookable for pending doctor, got %v", err)
	}
	d.doctors.items[doc.ID].Status = StatusApproved
	d.doctors.items[doc.ID].Available = true
	if _, err := svc.GetBookable(context.Background(), doc.ID); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, d := newTestService(t)
	doc := seedPending(d, "")
	actor := auth.Actor{UserID: doc.UserID, Role: auth.RoleDoctor, DoctorID: doc.ID}

	err := svc.UpdateProfile(context.Background(), actor, ProfileInput{Qualifications: "MD", Bio: "hi", ConsultationFee: 80})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := d.doctors.items[doc.ID]; got.ConsultationFee != 80 || got.Available {
		t.Errorf("unexpected profile: %+v", got)
	}
	err = svc.UpdateProfile(context.Background(), actor, ProfileInput{Qualifications: "MD", ConsultationFee: -1})
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		t.Errorf("expected validation error, got %v", err)
	}
}

// -- Specialties --

func TestSpecialties(t *testing.T) {
	svc, d := newTestService(t)
	sp, err := svc.CreateSpecialty(context.Background(), admin, SpecialtyInput{Name: " Dermatology "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sp.Name != "Dermatology" {
		t.Errorf("expected trimmed name, got %q", sp.Name)
	}
	if _, err := svc.CreateSpecialty(context.Background(), admin, SpecialtyInput{Name: "Dermatology"}); !errors.Is(err, ErrSpecialtyExists) {
		t.Errorf("expected ErrSpecialtyExists, got %v", err)
	}

	d.specialties.inUse[1] = true
	if err := svc.DeleteSpecialty(context.Background(), admin, 1); !errors.Is(err, ErrSpecialtyInUse) {
		t.Errorf("expected ErrSpecialtyInUse, got %v", err)
	}
	if err := svc.DeleteSpecialty(context.Background(), admin, sp.ID); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
