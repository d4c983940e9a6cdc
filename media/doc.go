// Package media fetches and converts audio with external tools.
//
// yt-dlp resolves and downloads the track, ffmpeg transcodes it to
// OGG/Vorbis and ffprobe inspects uploaded files. Every invocation goes
// through a Runner with a hard timeout.
//
// Download-tool failures are retried once after refreshing the yt-dlp
// binary, unless the source demands sign-in, which is never retried.
// Size and duration ceilings are the caller's concern.
package media
