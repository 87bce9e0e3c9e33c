package asc

import (
	"time"

	"github.com/asccrash/asccrash/internal/model"
)

// JSON:API documents returned by App Store Connect. Only the fields asccrash
// reads are declared; every attribute is optional.

type pagedLinks struct {
	Next *string `json:"next"`
}

type appsResponse struct {
	Data  []appResource `json:"data"`
	Links pagedLinks    `json:"links"`
}

type appResource struct {
	ID         string         `json:"id"`
	Attributes *appAttributes `json:"attributes"`
}

type appAttributes struct {
	BundleID *string `json:"bundleId"`
	Name     *string `json:"name"`
}

type submissionsResponse struct {
	Data  []submissionResource `json:"data"`
	Links pagedLinks           `json:"links"`
}

type submissionResource struct {
	ID            string                   `json:"id"`
	Attributes    *submissionAttributes    `json:"attributes"`
	Relationships *submissionRelationships `json:"relationships"`
}

// submissionAttributes covers both betaFeedbackCrashSubmissions and
// betaFeedbackScreenshotSubmissions; the crash-only fields are simply absent
// for screenshots.
type submissionAttributes struct {
	CreatedDate             *time.Time `json:"createdDate"`
	Comment                 *string    `json:"comment"`
	Email                   *string    `json:"email"`
	DeviceModel             *string    `json:"deviceModel"`
	OSVersion               *string    `json:"osVersion"`
	Locale                  *string    `json:"locale"`
	TimeZone                *string    `json:"timeZone"`
	Architecture            *string    `json:"architecture"`
	ConnectionType          *string    `json:"connectionType"`
	AppUptimeInMilliseconds *int64     `json:"appUptimeInMilliseconds"`
	DiskBytesAvailable      *int64     `json:"diskBytesAvailable"`
	DiskBytesTotal          *int64     `json:"diskBytesTotal"`
	BatteryPercentage       *int64     `json:"batteryPercentage"`
	ScreenWidthInPoints     *int64     `json:"screenWidthInPoints"`
	ScreenHeightInPoints    *int64     `json:"screenHeightInPoints"`
	AppPlatform             *string    `json:"appPlatform"`
	DevicePlatform          *string    `json:"devicePlatform"`
	DeviceFamily            *string    `json:"deviceFamily"`
	BuildBundleID           *string    `json:"buildBundleId"`
}

type submissionRelationships struct {
	Build  *relationship `json:"build"`
	Tester *relationship `json:"tester"`
}

type relationship struct {
	Data *resourceID `json:"data"`
}

type resourceID struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type crashLogResponse struct {
	Data struct {
		Attributes *struct {
			LogText *string `json:"logText"`
		} `json:"attributes"`
	} `json:"data"`
}

type screenshotSubmissionResponse struct {
	Data struct {
		Attributes *struct {
			Screenshots []screenshotImage `json:"screenshots"`
		} `json:"attributes"`
	} `json:"data"`
}

type screenshotImage struct {
	URL            string     `json:"url"`
	Width          *int64     `json:"width"`
	Height         *int64     `json:"height"`
	ExpirationDate *time.Time `json:"expirationDate"`
}

// toNewSubmission maps a remote resource to the store's insert payload.
// A missing createdDate becomes the zero time, which sorts last.
func (r *submissionResource) toNewSubmission(kind model.Kind) model.NewSubmission {
	sub := model.NewSubmission{
		Kind:         kind,
		SubmissionID: r.ID,
	}

	if a := r.Attributes; a != nil {
		if a.CreatedDate != nil {
			sub.CreatedAt = a.CreatedDate.UTC()
		}
		sub.Metadata = model.Metadata{
			DeviceModel:        a.DeviceModel,
			OSVersion:          a.OSVersion,
			AppPlatform:        a.AppPlatform,
			DevicePlatform:     a.DevicePlatform,
			DeviceFamily:       a.DeviceFamily,
			Architecture:       a.Architecture,
			ConnectionType:     a.ConnectionType,
			Locale:             a.Locale,
			TimeZone:           a.TimeZone,
			BatteryPercentage:  a.BatteryPercentage,
			AppUptimeMillis:    a.AppUptimeInMilliseconds,
			DiskBytesAvailable: a.DiskBytesAvailable,
			DiskBytesTotal:     a.DiskBytesTotal,
			ScreenWidth:        a.ScreenWidthInPoints,
			ScreenHeight:       a.ScreenHeightInPoints,
			BuildBundleID:      a.BuildBundleID,
			TesterEmail:        a.Email,
			TesterComment:      a.Comment,
		}
	}

	if rel := r.Relationships; rel != nil && rel.Build != nil && rel.Build.Data != nil {
		id := rel.Build.Data.ID
		sub.BuildID = &id
	}

	return sub
}
