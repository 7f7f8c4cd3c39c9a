package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/sparkacademy/portal-service/internal/events"
	"github.com/sparkacademy/portal-service/internal/llm"
	"github.com/sparkacademy/portal-service/internal/models"
	"github.com/sparkacademy/portal-service/internal/storage"
	"github.com/sparkacademy/portal-service/internal/validator"
)

// fakeMediaProvider satisfies mediaProvider with canned responses
type fakeMediaProvider struct {
	imageData   []byte
	imageErr    error
	operationID string
	startErr    error
	op          llm.VideoOperation
	opErr       error
	videoData   []byte
	downloadErr error
}

func (p *fakeMediaProvider) GenerateImage(ctx context.Context, prompt string, size string) ([]byte, error) {
	if p.imageErr != nil {
		return nil, p.imageErr
	}
	return p.imageData, nil
}

func (p *fakeMediaProvider) EditImage(ctx context.Context, prompt string, sourceURL string) ([]byte, error) {
	if p.imageErr != nil {
		return nil, p.imageErr
	}
	return p.imageData, nil
}

func (p *fakeMediaProvider) StartVideoGeneration(ctx context.Context, prompt string) (string, error) {
	if p.startErr != nil {
		return "", p.startErr
	}
	return p.operationID, nil
}

func (p *fakeMediaProvider) GetVideoOperation(ctx context.Context, operationID string) (llm.VideoOperation, error) {
	if p.opErr != nil {
		return llm.VideoOperation{}, p.opErr
	}
	return p.op, nil
}

func (p *fakeMediaProvider) DownloadVideo(ctx context.Context, videoURL string) ([]byte, string, error) {
	if p.downloadErr != nil {
		return nil, "", p.downloadErr
	}
	return p.videoData, "video/mp4", nil
}

func (p *fakeMediaProvider) ImageModel() string { return "spark-image-1" }

func newMediaTestService(t *testing.T, historyLimit int) (MediaService, *gorm.DB, *events.MockEventPublisher, *fakeMediaProvider, *storage.MemoryStore) {
	t.Helper()

	db := newTestDB(t)
	repo := newTestRepo(t, db)
	pub := events.NewMockEventPublisher(testLogger())
	provider := &fakeMediaProvider{
		imageData:   []byte("png-bytes"),
		operationID: "op-1",
		videoData:   []byte("mp4-bytes"),
	}
	store := storage.NewMemoryStore()
	svc := NewMediaService(repo, db, testLogger(), validator.New(), pub, provider, store, historyLimit)
	return svc, db, pub, provider, store
}

// ===== IMAGES =====

func TestGenerateImageStoresResult(t *testing.T) {
	svc, db, _, _, store := newMediaTestService(t, 10)
	seedUser(t, db, "student-1")

	image, err := svc.GenerateImage(context.Background(), "student-1", &GenerateImageRequest{Prompt: "a red fox"})
	if err != nil {
		t.Fatalf("GenerateImage() error = %v", err)
	}

	if image.ID == 0 {
		t.Fatal("GenerateImage() did not persist the row")
	}
	if image.URL == "" || image.ObjectKey == "" {
		t.Fatalf("image URL/key missing: %+v", image)
	}
	if image.Model != "spark-image-1" {
		t.Fatalf("Model = %s, want spark-image-1", image.Model)
	}
	if image.Size != "1024x1024" {
		t.Fatalf("Size = %s, want the 1024x1024 default", image.Size)
	}
	if store.Len() != 1 {
		t.Fatalf("stored objects = %d, want 1", store.Len())
	}
	stored, ok := store.Get(image.ObjectKey)
	if !ok {
		t.Fatalf("object %s missing from storage", image.ObjectKey)
	}
	if string(stored) != "png-bytes" {
		t.Fatalf("stored bytes = %q, want the provider payload", stored)
	}

	list, err := svc.ListImages(context.Background(), "student-1", 0)
	if err != nil {
		t.Fatalf("ListImages() error = %v", err)
	}
	if list.Total != 1 {
		t.Fatalf("Total = %d, want 1", list.Total)
	}
}

func TestImageHistoryEvictsOldest(t *testing.T) {
	svc, db, _, _, store := newMediaTestService(t, 3)
	seedUser(t, db, "student-1")
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		if _, err := svc.GenerateImage(ctx, "student-1", &GenerateImageRequest{Prompt: fmt.Sprintf("prompt-%d", i)}); err != nil {
			t.Fatalf("GenerateImage(%d) error = %v", i, err)
		}
	}

	list, err := svc.ListImages(ctx, "student-1", 0)
	if err != nil {
		t.Fatalf("ListImages() error = %v", err)
	}
	if list.Total != 3 {
		t.Fatalf("Total = %d, want the cap of 3", list.Total)
	}

	prompts := make(map[string]bool)
	for _, img := range list.Images {
		prompts[img.Prompt] = true
	}
	if prompts["prompt-1"] {
		t.Fatal("oldest image survived eviction")
	}
	for _, want := range []string{"prompt-2", "prompt-3", "prompt-4"} {
		if !prompts[want] {
			t.Fatalf("missing %s after eviction, have %v", want, prompts)
		}
	}

	// The evicted object is gone from storage as well
	if store.Len() != 3 {
		t.Fatalf("stored objects = %d, want 3", store.Len())
	}
}

func TestGenerateImageProviderDown(t *testing.T) {
	svc, db, _, provider, store := newMediaTestService(t, 10)
	seedUser(t, db, "student-1")
	provider.imageErr = errors.New("timeout")

	_, err := svc.GenerateImage(context.Background(), "student-1", &GenerateImageRequest{Prompt: "a red fox"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("GenerateImage() error = %v, want ErrProviderUnavailable", err)
	}
	if store.Len() != 0 {
		t.Fatalf("stored objects = %d, want 0 after failure", store.Len())
	}
}

func TestEditImageValidation(t *testing.T) {
	svc, db, _, _, _ := newMediaTestService(t, 10)
	seedUser(t, db, "student-1")

	_, err := svc.EditImage(context.Background(), "student-1", &EditImageRequest{Prompt: "add a hat", SourceURL: "not-a-url"})

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("EditImage() error = %v, want validation errors", err)
	}
}

func TestDeleteImageOwnership(t *testing.T) {
	svc, db, _, _, store := newMediaTestService(t, 10)
	seedUser(t, db, "owner")
	seedUser(t, db, "intruder")
	ctx := context.Background()

	image, err := svc.GenerateImage(ctx, "owner", &GenerateImageRequest{Prompt: "a castle"})
	if err != nil {
		t.Fatalf("GenerateImage() error = %v", err)
	}

	if err := svc.DeleteImage(ctx, "intruder", image.ID); !errors.Is(err, ErrImageAccessDenied) {
		t.Fatalf("foreign DeleteImage() error = %v, want ErrImageAccessDenied", err)
	}
	if err := svc.DeleteImage(ctx, "owner", 9999); !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("unknown DeleteImage() error = %v, want ErrImageNotFound", err)
	}

	if err := svc.DeleteImage(ctx, "owner", image.ID); err != nil {
		t.Fatalf("DeleteImage() error = %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("stored objects = %d, want 0 after delete", store.Len())
	}
}

// ===== VIDEO JOBS =====

func TestVideoJobLifecycle(t *testing.T) {
	svc, db, pub, provider, store := newMediaTestService(t, 10)
	seedUser(t, db, "student-1")
	ctx := context.Background()

	job, err := svc.StartVideo(ctx, "student-1", &GenerateVideoRequest{Prompt: "a volcano erupting"})
	if err != nil {
		t.Fatalf("StartVideo() error = %v", err)
	}
	if job.Status != models.VideoJobPending || job.OperationID != "op-1" {
		t.Fatalf("new job = %+v, want pending with op-1", job)
	}

	// First poll: still rendering
	provider.op = llm.VideoOperation{ID: "op-1", Status: "running"}
	settled, err := svc.PollVideoJobs(ctx, 10)
	if err != nil {
		t.Fatalf("PollVideoJobs() error = %v", err)
	}
	if settled != 0 {
		t.Fatalf("settled = %d, want 0 while running", settled)
	}

	running, err := svc.GetVideoJob(ctx, "student-1", job.ID)
	if err != nil {
		t.Fatalf("GetVideoJob() error = %v", err)
	}
	if running.Status != models.VideoJobRunning || running.PollCount != 1 {
		t.Fatalf("job after first poll = status %s polls %d", running.Status, running.PollCount)
	}

	// The cooldown hides the job from the next round until it ages out
	if settled, _ := svc.PollVideoJobs(ctx, 10); settled != 0 {
		t.Fatalf("settled = %d inside the poll cooldown, want 0", settled)
	}
	if still, _ := svc.GetVideoJob(ctx, "student-1", job.ID); still.PollCount != 1 {
		t.Fatalf("PollCount = %d, want 1 while cooling down", still.PollCount)
	}

	agePoll(t, db, job.ID)

	// Second effective poll: provider finished
	provider.op = llm.VideoOperation{ID: "op-1", Status: "succeeded", VideoURL: "https://provider.example/video.mp4"}
	settled, err = svc.PollVideoJobs(ctx, 10)
	if err != nil {
		t.Fatalf("PollVideoJobs() error = %v", err)
	}
	if settled != 1 {
		t.Fatalf("settled = %d, want 1", settled)
	}

	done, err := svc.GetVideoJob(ctx, "student-1", job.ID)
	if err != nil {
		t.Fatalf("GetVideoJob() error = %v", err)
	}
	if done.Status != models.VideoJobSucceeded {
		t.Fatalf("Status = %s, want succeeded", done.Status)
	}
	if done.VideoURL == nil || done.ObjectKey == nil {
		t.Fatalf("finished job missing stored URL/key: %+v", done)
	}
	if store.Len() != 1 {
		t.Fatalf("stored objects = %d, want the downloaded render", store.Len())
	}

	completed := eventsOfType(pub, events.EventTypeVideoCompleted)
	if len(completed) != 1 {
		t.Fatalf("video completed events = %d, want 1", len(completed))
	}
	payload, ok := completed[0].Data.(VideoCompletedEvent)
	if !ok {
		t.Fatalf("video completed payload type = %T", completed[0].Data)
	}
	if payload.JobID != job.ID || payload.VideoURL != *done.VideoURL {
		t.Fatalf("video completed payload = %+v", payload)
	}
}

func TestPollVideoJobFailure(t *testing.T) {
	svc, db, pub, provider, _ := newMediaTestService(t, 10)
	seedUser(t, db, "student-1")
	ctx := context.Background()

	job, err := svc.StartVideo(ctx, "student-1", &GenerateVideoRequest{Prompt: "impossible scene"})
	if err != nil {
		t.Fatalf("StartVideo() error = %v", err)
	}

	provider.op = llm.VideoOperation{ID: "op-1", Status: "failed", Error: "content policy"}
	settled, err := svc.PollVideoJobs(ctx, 10)
	if err != nil {
		t.Fatalf("PollVideoJobs() error = %v", err)
	}
	if settled != 1 {
		t.Fatalf("settled = %d, want 1", settled)
	}

	failed, err := svc.GetVideoJob(ctx, "student-1", job.ID)
	if err != nil {
		t.Fatalf("GetVideoJob() error = %v", err)
	}
	if failed.Status != models.VideoJobFailed {
		t.Fatalf("Status = %s, want failed", failed.Status)
	}
	if failed.Error == nil || *failed.Error != "content policy" {
		t.Fatalf("Error = %v, want the provider reason", failed.Error)
	}

	if n := len(eventsOfType(pub, events.EventTypeVideoFailed)); n != 1 {
		t.Fatalf("video failed events = %d, want 1", n)
	}
}

func TestPollVideoJobDownloadRetries(t *testing.T) {
	svc, db, _, provider, _ := newMediaTestService(t, 10)
	seedUser(t, db, "student-1")
	ctx := context.Background()

	job, err := svc.StartVideo(ctx, "student-1", &GenerateVideoRequest{Prompt: "slow cdn"})
	if err != nil {
		t.Fatalf("StartVideo() error = %v", err)
	}

	provider.op = llm.VideoOperation{ID: "op-1", Status: "succeeded", VideoURL: "https://provider.example/video.mp4"}
	provider.downloadErr = errors.New("cdn hiccup")

	settled, err := svc.PollVideoJobs(ctx, 10)
	if err != nil {
		t.Fatalf("PollVideoJobs() error = %v", err)
	}
	if settled != 0 {
		t.Fatalf("settled = %d, want 0 while the download fails", settled)
	}

	// Next round retries the download and completes
	agePoll(t, db, job.ID)
	provider.downloadErr = nil

	settled, err = svc.PollVideoJobs(ctx, 10)
	if err != nil {
		t.Fatalf("PollVideoJobs() error = %v", err)
	}
	if settled != 1 {
		t.Fatalf("settled = %d, want 1 after the download recovers", settled)
	}
}

func TestStartVideoCapabilityMissing(t *testing.T) {
	svc, db, _, provider, _ := newMediaTestService(t, 10)
	seedUser(t, db, "student-1")
	provider.startErr = llm.ErrVideoCapabilityUnavailable

	_, err := svc.StartVideo(context.Background(), "student-1", &GenerateVideoRequest{Prompt: "anything"})

	var ruleErr *BusinessRuleError
	if !errors.As(err, &ruleErr) || ruleErr.Rule != "video_capability" {
		t.Fatalf("StartVideo() error = %v, want video_capability rule", err)
	}
}

func TestVideoJobOwnership(t *testing.T) {
	svc, db, _, _, _ := newMediaTestService(t, 10)
	seedUser(t, db, "owner")
	seedUser(t, db, "intruder")
	ctx := context.Background()

	job, err := svc.StartVideo(ctx, "owner", &GenerateVideoRequest{Prompt: "a waterfall"})
	if err != nil {
		t.Fatalf("StartVideo() error = %v", err)
	}

	if _, err := svc.GetVideoJob(ctx, "intruder", job.ID); !errors.Is(err, ErrVideoAccessDenied) {
		t.Fatalf("foreign GetVideoJob() error = %v, want ErrVideoAccessDenied", err)
	}
	if _, err := svc.GetVideoJob(ctx, "owner", "missing"); !errors.Is(err, ErrVideoJobNotFound) {
		t.Fatalf("unknown GetVideoJob() error = %v, want ErrVideoJobNotFound", err)
	}
}

// agePoll pushes a job's last poll beyond the cooldown window
func agePoll(t *testing.T, db *gorm.DB, jobID string) {
	t.Helper()
	past := time.Now().UTC().Add(-time.Minute)
	if err := db.Model(&models.VideoJob{}).Where("id = ?", jobID).Update("last_polled_at", past).Error; err != nil {
		t.Fatalf("failed to age job poll time: %v", err)
	}
}
