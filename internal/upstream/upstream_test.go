package upstream

import "testing"

func TestNewEndpoints(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		wantBase string
	}{
		{"既定値", "", DefaultBaseURL},
		{"末尾スラッシュを除去", "http://localhost:9000/", "http://localhost:9000"},
		{"そのまま使用", "https://example.com", "https://example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEndpoints(tt.baseURL)
			if e.BaseURL != tt.wantBase {
				t.Errorf("BaseURL = %q, want %q", e.BaseURL, tt.wantBase)
			}
			if e.BlogList != tt.wantBase+"/s/n46/api/list/blog" {
				t.Errorf("BlogList = %q", e.BlogList)
			}
			if e.MemberList != tt.wantBase+"/s/n46/api/list/member" {
				t.Errorf("MemberList = %q", e.MemberList)
			}
			if e.CommentList != tt.wantBase+"/s/n46/api/list/comment" {
				t.Errorf("CommentList = %q", e.CommentList)
			}
		})
	}
}
