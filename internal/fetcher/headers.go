package fetcher

import (
	"net/http"
	"net/url"
)

// requestHeaders returns the default headers for a request to target, with
// caller overriding any of them.
func requestHeaders(target url.URL, userAgent string, caller http.Header) http.Header {
	referer := url.URL{Scheme: target.Scheme, Host: target.Host}

	headers := http.Header{}
	headers.Set("User-Agent", userAgent)
	headers.Set("Accept", "text/html;q=0.9,image/webp,*/*;q=0.8")
	headers.Set("Accept-Language", "en-US,en;q=0.5")
	headers.Set("Cache-Control", "max-age=0")
	headers.Set("Referer", referer.String())
	headers.Set("Upgrade-Insecure-Requests", "1")
	headers.Set("Sec-Fetch-Dest", "document")
	headers.Set("Sec-Fetch-Mode", "navigate")
	headers.Set("Sec-Fetch-Site", "none")
	headers.Set("Sec-Ch-Ua", `"NetScrape";v="1"`)
	headers.Set("Sec-Ch-Ua-Mobile", "?0")
	headers.Set("Sec-Ch-Ua-Platform", "Windows")

	for key, values := range caller {
		canonical := http.CanonicalHeaderKey(key)
		headers.Del(canonical)
		for _, v := range values {
			headers.Add(canonical, v)
		}
	}
	return headers
}
