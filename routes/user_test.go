package routes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"carpool-server/models"
	"carpool-server/storage"

	"github.com/kataras/iris/v12"
)

func TestUpdateAvatarReplacesPreviousImage(t *testing.T) {
	app := buildTestApp(t)
	user := seedUser(t, models.RoleParent)
	token := signTestToken(t, user)

	var mu sync.Mutex
	var destroyed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if strings.HasSuffix(r.URL.Path, "/image/destroy") {
			mu.Lock()
			destroyed = append(destroyed, r.PostFormValue("public_id"))
			mu.Unlock()
			fmt.Fprint(w, `{"result":"ok"}`)
			return
		}
		fmt.Fprintf(w, `{"secure_url":"https://img.example.com/%s.jpg"}`, r.PostFormValue("public_id"))
	}))
	defer srv.Close()

	t.Setenv("CLOUDINARY_API_BASE", srv.URL)
	t.Setenv("CLOUDINARY_CLOUD_NAME", "test")
	t.Setenv("CLOUDINARY_API_KEY", "key")
	t.Setenv("CLOUDINARY_API_SECRET", "secret")
	t.Setenv("CLOUDINARY_FOLDER", "")

	body := iris.Map{"avatar": "data:image/jpeg;base64,AAAA"}
	resp := doJSON(app, http.MethodPatch, "/api/user/avatar", token, body)
	if resp.Code != http.StatusOK {
		t.Fatalf("first upload: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var stored models.User
	storage.DB.First(&stored, user.ID)
	if stored.AvatarURL == "" || !strings.HasPrefix(stored.AvatarPublicID, "avatars/") {
		t.Fatalf("expected avatar recorded, got url %q public id %q", stored.AvatarURL, stored.AvatarPublicID)
	}
	firstPublicID := stored.AvatarPublicID

	mu.Lock()
	if len(destroyed) != 0 {
		mu.Unlock()
		t.Fatalf("first upload must not destroy anything, got %v", destroyed)
	}
	mu.Unlock()

	resp = doJSON(app, http.MethodPatch, "/api/user/avatar", token, body)
	if resp.Code != http.StatusOK {
		t.Fatalf("second upload: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	// Replacing the avatar destroys the image it displaced.
	mu.Lock()
	defer mu.Unlock()
	if len(destroyed) != 1 || destroyed[0] != firstPublicID {
		t.Fatalf("expected old public id %q destroyed, got %v", firstPublicID, destroyed)
	}
	storage.DB.First(&stored, user.ID)
	if stored.AvatarPublicID == firstPublicID {
		t.Fatalf("expected a fresh public id after replacement")
	}
}

func TestUpdateAvatarFailsWithoutUploadBackend(t *testing.T) {
	app := buildTestApp(t)
	user := seedUser(t, models.RoleParent)
	token := signTestToken(t, user)

	t.Setenv("CLOUDINARY_CLOUD_NAME", "")
	t.Setenv("CLOUDINARY_API_KEY", "")
	t.Setenv("CLOUDINARY_API_SECRET", "")

	resp := doJSON(app, http.MethodPatch, "/api/user/avatar", token,
		iris.Map{"avatar": "data:image/jpeg;base64,AAAA"})
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without upload backend, got %d", resp.Code)
	}

	var stored models.User
	storage.DB.First(&stored, user.ID)
	if stored.AvatarURL != "" {
		t.Fatalf("expected avatar untouched, got %q", stored.AvatarURL)
	}
}

func TestRedeemLinkCodeLinksBothSides(t *testing.T) {
	app := buildTestApp(t)
	parent := seedUser(t, models.RoleParent)
	child := seedUser(t, models.RoleChild)
	parentToken := signTestToken(t, parent)
	childToken := signTestToken(t, child)

	resp := doJSON(app, http.MethodPost, "/api/user/link-code", parentToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("create link code: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		LinkCode models.LinkCode `json:"linkCode"`
	}
	decodeBody(t, resp, &created)

	// Creators cannot redeem their own code.
	resp = doJSON(app, http.MethodPost, "/api/user/link-code/redeem", parentToken,
		iris.Map{"code": created.LinkCode.Code})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("self redeem: expected 400, got %d", resp.Code)
	}

	resp = doJSON(app, http.MethodPost, "/api/user/link-code/redeem", childToken,
		iris.Map{"code": created.LinkCode.Code})
	if resp.Code != http.StatusOK {
		t.Fatalf("redeem: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	// Both records carry the link.
	var storedParent, storedChild models.User
	storage.DB.First(&storedParent, parent.ID)
	storage.DB.First(&storedChild, child.ID)
	if !linkedIDsContain(t, storedParent.ChildIDs, child.ID) {
		t.Fatalf("expected parent's children to contain %d, got %s", child.ID, storedParent.ChildIDs)
	}
	if !linkedIDsContain(t, storedChild.ParentIDs, parent.ID) {
		t.Fatalf("expected child's parents to contain %d, got %s", parent.ID, storedChild.ParentIDs)
	}

	// The code is single-use.
	var remaining int64
	storage.DB.Model(&models.LinkCode{}).Where("id = ?", created.LinkCode.ID).Count(&remaining)
	if remaining != 0 {
		t.Fatalf("expected code deleted after redeem")
	}
	resp = doJSON(app, http.MethodPost, "/api/user/link-code/redeem", childToken,
		iris.Map{"code": created.LinkCode.Code})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("second redeem: expected 404, got %d", resp.Code)
	}
}

func linkedIDsContain(t *testing.T, raw []byte, id uint) bool {
	t.Helper()
	var ids []uint
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &ids); err != nil {
			t.Fatalf("failed to parse linked ids %s: %v", raw, err)
		}
	}
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
