package common

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCreators(t *testing.T) {
	content := `
# tracked creators
UC0000000000000000000001,First Singer
https://www.youtube.com/channel/UC0000000000000000000002/videos , Second Singer
UC0000000000000000000003

UC0000000000000000000001,Duplicate
`
	creators, err := ParseCreators(content)
	require.NoError(t, err)
	assert.Equal(t, []model.Creator{
		{ChannelID: "UC0000000000000000000001", Name: "First Singer"},
		{ChannelID: "UC0000000000000000000002", Name: "Second Singer"},
		{ChannelID: "UC0000000000000000000003"},
	}, creators)
}

func TestParseCreators_InvalidLine(t *testing.T) {
	_, err := ParseCreators("UC1\nnot a channel,Name\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestChannelID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "UCabc", want: "UCabc"},
		{in: "  UCabc  ", want: "UCabc"},
		{in: "https://www.youtube.com/channel/UCabc", want: "UCabc"},
		{in: "https://youtube.com/channel/UCabc?view=0", want: "UCabc"},
		{in: "", wantErr: true},
		{in: "https://www.youtube.com/channel/", wantErr: true},
		{in: "two words", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ChannelID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadCreatorsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creators.txt")
	require.NoError(t, os.WriteFile(path, []byte("UCa,Alpha\nUCb,Beta\n"), 0600))

	creators, err := ReadCreatorsFromFile(path)
	require.NoError(t, err)
	assert.Len(t, creators, 2)

	_, err = ReadCreatorsFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestLoadCreators_Remote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "song-tracker/1.0", r.Header.Get("User-Agent"))
		fmt.Fprintln(w, "UCremote,Remote Singer")
	}))
	defer server.Close()

	creators, err := LoadCreators(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, []model.Creator{{ChannelID: "UCremote", Name: "Remote Singer"}}, creators)
}

func TestDownloadFile_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := DownloadFile(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad status code: 404")

	_, err = DownloadFile(context.Background(), "http://127.0.0.1:0/creators.txt")
	assert.Error(t, err)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.com/creators.txt"))
	assert.True(t, IsRemote("http://example.com/creators.txt"))
	assert.False(t, IsRemote("/etc/songtracker/creators.txt"))
}
