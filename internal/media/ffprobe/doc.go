// Package ffprobe wraps ffprobe JSON inspection of media containers.
package ffprobe
