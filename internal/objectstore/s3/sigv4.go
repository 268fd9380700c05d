/*
Copyright The CodePush Server Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package s3

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	awsAlgorithm = "AWS4-HMAC-SHA256"
	awsService   = "s3"
	awsRequest   = "aws4_request"
)

// sign adds a standard (header-based) SigV4 Authorization header to req.
func (s *Store) sign(req *http.Request, body []byte) {
	now := time.Now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")

	req.Header.Set("X-Amz-Date", amzDate)
	payloadHash := hashHex(body)
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	if req.Host == "" {
		req.Host = req.URL.Host
	}

	canonicalHeaders, signedHeaders := canonicalizeHeaders(req)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL.Path),
		req.URL.RawQuery,
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	credentialScope := fmt.Sprintf("%s/%s/%s/%s", dateStamp, s.Region, awsService, awsRequest)
	stringToSign := strings.Join([]string{
		awsAlgorithm,
		amzDate,
		credentialScope,
		hashHex([]byte(canonicalRequest)),
	}, "\n")

	signingKey := s.signingKey(dateStamp)
	signature := hex.EncodeToString(hmacSHA256(signingKey, []byte(stringToSign)))

	authHeader := fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		awsAlgorithm, s.AccessKey, credentialScope, signedHeaders, signature)
	req.Header.Set("Authorization", authHeader)
}

// presignedGetURL builds a query-string-signed GET URL (SigV4 presigning),
// valid from issuedAt for ttl.
func (s *Store) presignedGetURL(key string, issuedAt time.Time, ttl time.Duration) string {
	amzDate := issuedAt.Format("20060102T150405Z")
	dateStamp := issuedAt.Format("20060102")
	credentialScope := fmt.Sprintf("%s/%s/%s/%s", dateStamp, s.Region, awsService, awsRequest)

	host := strings.TrimPrefix(strings.TrimPrefix(s.Endpoint, "https://"), "http://")
	query := url.Values{
		"X-Amz-Algorithm":     {awsAlgorithm},
		"X-Amz-Credential":    {s.AccessKey + "/" + credentialScope},
		"X-Amz-Date":          {amzDate},
		"X-Amz-Expires":       {strconv.Itoa(int(ttl.Seconds()))},
		"X-Amz-SignedHeaders": {"host"},
	}
	canonicalQuery := query.Encode()

	canonicalRequest := strings.Join([]string{
		http.MethodGet,
		canonicalURI("/" + s.Bucket + "/" + key),
		canonicalQuery,
		"host:" + host + "\n",
		"host",
		"UNSIGNED-PAYLOAD",
	}, "\n")

	stringToSign := strings.Join([]string{
		awsAlgorithm,
		amzDate,
		credentialScope,
		hashHex([]byte(canonicalRequest)),
	}, "\n")

	signature := hex.EncodeToString(hmacSHA256(s.signingKey(dateStamp), []byte(stringToSign)))
	return fmt.Sprintf("%s/%s/%s?%s&X-Amz-Signature=%s", s.Endpoint, s.Bucket, key, canonicalQuery, signature)
}

func (s *Store) signingKey(dateStamp string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+s.SecretKey), []byte(dateStamp))
	kRegion := hmacSHA256(kDate, []byte(s.Region))
	kService := hmacSHA256(kRegion, []byte(awsService))
	return hmacSHA256(kService, []byte(awsRequest))
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func canonicalURI(p string) string {
	if p == "" {
		return "/"
	}
	return (&url.URL{Path: p}).EscapedPath()
}

func canonicalizeHeaders(req *http.Request) (canonical, signed string) {
	names := []string{"host", "x-amz-content-sha256", "x-amz-date"}
	for name := range req.Header {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-amz-meta-") {
			names = append(names, lower)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		var value string
		switch name {
		case "host":
			value = req.Host
		default:
			value = req.Header.Get(name)
		}
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(strings.TrimSpace(value))
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(names, ";")
}
