package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/store"
)

func newMemberFixture(t *testing.T) (*fixture, *store.MemberStore, *int) {
	t.Helper()
	f := newFixture(t)
	ms := store.NewMemberStore(f.db)
	reloads := new(int)
	h := NewMemberHandler(ms, func(context.Context) { *reloads++ }, discardLogger())
	f.mux.HandleFunc("GET /api/members", h.List)
	f.mux.HandleFunc("POST /api/members", h.Create)
	f.mux.HandleFunc("PUT /api/members/order", h.UpdateSortOrder)
	f.mux.HandleFunc("PUT /api/members/{id}", h.Update)
	f.mux.HandleFunc("DELETE /api/members/{id}", h.Delete)
	f.mux.HandleFunc("POST /api/members/{id}/default", h.SetDefault)
	return f, ms, reloads
}

func TestMemberCreateAndList(t *testing.T) {
	f, _, reloads := newMemberFixture(t)

	rec := f.do(t, http.MethodPost, "/api/members", map[string]string{"name": "  Ava ", "email": "ava@example.com"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}
	var m model.Member
	decodeBody(t, rec, &m)
	if m.Name != "Ava" {
		t.Errorf("name = %q, want %q", m.Name, "Ava")
	}
	if m.Color != defaultMemberColor {
		t.Errorf("color = %q, want default %q", m.Color, defaultMemberColor)
	}
	if *reloads != 1 {
		t.Errorf("reloads = %d, want 1", *reloads)
	}

	rec = f.do(t, http.MethodGet, "/api/members", nil)
	var list []model.Member
	decodeBody(t, rec, &list)
	if len(list) != 1 || list[0].ID != m.ID {
		t.Errorf("list = %+v, want the created member", list)
	}
}

func TestMemberListEmpty(t *testing.T) {
	f, _, _ := newMemberFixture(t)

	rec := f.do(t, http.MethodGet, "/api/members", nil)
	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want an empty array", got)
	}
}

func TestMemberValidation(t *testing.T) {
	f, _, reloads := newMemberFixture(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"blank name", map[string]string{"name": "  "}},
		{"bad email", map[string]string{"name": "Ava", "email": "not-an-email"}},
		{"bad color", map[string]string{"name": "Ava", "color": "red"}},
		{"short hex", map[string]string{"name": "Ava", "color": "#F00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/members", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
	if *reloads != 0 {
		t.Errorf("rejected requests reloaded %d times", *reloads)
	}
}

func TestMemberUpdateKeepsBlanks(t *testing.T) {
	f, ms, _ := newMemberFixture(t)
	m, err := ms.Create("Ava", "", "#FF0000", "🦊")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}

	rec := f.do(t, http.MethodPut, "/api/members/"+itoa(m.ID), map[string]string{"name": "Ava B"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	var got model.Member
	decodeBody(t, rec, &got)
	if got.Name != "Ava B" || got.Color != "#FF0000" || got.AvatarEmoji != "🦊" {
		t.Errorf("updated = %+v, want name changed and color/emoji kept", got)
	}

	if rec := f.do(t, http.MethodPut, "/api/members/999", map[string]string{"name": "x"}); rec.Code != http.StatusNotFound {
		t.Errorf("missing member status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec := f.do(t, http.MethodPut, "/api/members/abc", map[string]string{"name": "x"}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestMemberSetDefault(t *testing.T) {
	f, ms, _ := newMemberFixture(t)
	a, _ := ms.Create("Ava", "", "#FF0000", "")
	b, _ := ms.Create("Ben", "", "#00FF00", "")

	for _, m := range []*model.Member{a, b} {
		rec := f.do(t, http.MethodPost, "/api/members/"+itoa(m.ID)+"/default", nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
		}
	}

	list, err := ms.ListMembers()
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	for _, m := range list {
		if m.IsDefault != (m.ID == b.ID) {
			t.Errorf("member %s is_default = %v", m.Name, m.IsDefault)
		}
	}

	if rec := f.do(t, http.MethodPost, "/api/members/999/default", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing member status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestMemberDeleteAndOrder(t *testing.T) {
	f, ms, _ := newMemberFixture(t)
	a, _ := ms.Create("Ava", "", "#FF0000", "")
	b, _ := ms.Create("Ben", "", "#00FF00", "")
	c, _ := ms.Create("Cal", "", "#0000FF", "")

	rec := f.do(t, http.MethodPut, "/api/members/order", map[string][]int64{"ids": {c.ID, a.ID, b.ID}})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("order status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	rec = f.do(t, http.MethodDelete, "/api/members/"+itoa(a.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	list, _ := ms.ListMembers()
	if len(list) != 2 || list[0].ID != c.ID || list[1].ID != b.ID {
		t.Errorf("members = %+v, want Cal then Ben", list)
	}

	if rec := f.do(t, http.MethodPut, "/api/members/order", map[string][]int64{"ids": {}}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty order status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
