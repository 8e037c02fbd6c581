// Package common holds helpers shared by the CLI commands.
package common

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/rs/zerolog/log"
)

const channelURLPrefix = "/channel/"

// LoadCreators reads a creator list from a local file or, when source is an
// http(s) URL, downloads it first.
func LoadCreators(ctx context.Context, source string) ([]model.Creator, error) {
	if IsRemote(source) {
		data, err := DownloadFile(ctx, source)
		if err != nil {
			return nil, err
		}
		return ParseCreators(string(data))
	}
	return ReadCreatorsFromFile(source)
}

// IsRemote reports whether source is an http(s) URL.
func IsRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// DownloadFile fetches url and returns its body.
func DownloadFile(ctx context.Context, url string) ([]byte, error) {
	log.Info().Str("url", url).Msg("Downloading creator list")

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "song-tracker/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}

// ReadCreatorsFromFile reads creators from a file, one per line.
func ReadCreatorsFromFile(filename string) ([]model.Creator, error) {
	log.Debug().Str("filename", filename).Msg("Reading creators from file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseCreators(string(data))
}

// ParseCreators parses lines of the form "<channel>[,<name>]". The channel is
// a channel ID or a channel URL. Empty lines and lines starting with '#' are
// ignored, and a channel listed twice keeps its first entry.
func ParseCreators(content string) ([]model.Creator, error) {
	var creators []model.Creator
	seen := make(map[string]struct{})

	for n, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		channel, name, _ := strings.Cut(line, ",")
		id, err := ChannelID(channel)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		creators = append(creators, model.Creator{ChannelID: id, Name: strings.TrimSpace(name)})
	}

	log.Debug().Int("creator_count", len(creators)).Msg("Creators parsed")
	return creators, nil
}

// ChannelID extracts the channel ID from an ID or a youtube.com/channel URL.
func ChannelID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, channelURLPrefix); i >= 0 {
		s = s[i+len(channelURLPrefix):]
		if j := strings.IndexAny(s, "/?#"); j >= 0 {
			s = s[:j]
		}
	}
	if s == "" || strings.ContainsAny(s, " \t/?#") {
		return "", fmt.Errorf("invalid channel %q", s)
	}
	return s, nil
}
