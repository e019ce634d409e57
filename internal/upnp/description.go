package upnp

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
)

// ServiceDescription is one service entry of a device description document.
type ServiceDescription struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
	SCPDURL     string `xml:"SCPDURL"`
}

// DeviceDescription is the parsed subset of a device description document
// this application cares about. Embedded devices nest recursively.
type DeviceDescription struct {
	DeviceType       string `xml:"deviceType"`
	FriendlyName     string `xml:"friendlyName"`
	Manufacturer     string `xml:"manufacturer"`
	ManufacturerURL  string `xml:"manufacturerURL"`
	ModelDescription string `xml:"modelDescription"`
	ModelName        string `xml:"modelName"`
	ModelNumber      string `xml:"modelNumber"`
	SerialNumber     string `xml:"serialNumber"`
	UDN              string `xml:"UDN"`
	PresentationURL  string `xml:"presentationURL"`

	Services []ServiceDescription `xml:"serviceList>service"`
	Devices  []DeviceDescription  `xml:"deviceList>device"`
}

type descriptionRoot struct {
	XMLName xml.Name          `xml:"root"`
	URLBase string            `xml:"URLBase"`
	Device  DeviceDescription `xml:"device"`
}

// AllServices returns the services of the device and every embedded device.
func (d *DeviceDescription) AllServices() []ServiceDescription {
	services := append([]ServiceDescription(nil), d.Services...)
	for i := range d.Devices {
		services = append(services, d.Devices[i].AllServices()...)
	}
	return services
}

// FindService returns the first service matching serviceType, searching
// embedded devices depth-first.
func (d *DeviceDescription) FindService(serviceType string) *ServiceDescription {
	for i := range d.Services {
		if d.Services[i].ServiceType == serviceType {
			return &d.Services[i]
		}
	}
	for i := range d.Devices {
		if svc := d.Devices[i].FindService(serviceType); svc != nil {
			return svc
		}
	}
	return nil
}

// ParseDescription parses a device description document. The root device and
// URL base are returned; an empty URL base means URLs resolve against the
// document location.
func ParseDescription(data []byte) (*DeviceDescription, string, error) {
	var root descriptionRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, "", fmt.Errorf("parsing description: %w", err)
	}
	if root.Device.UDN == "" && root.Device.DeviceType == "" {
		return nil, "", fmt.Errorf("description has no device element")
	}
	return &root.Device, root.URLBase, nil
}

// ResolveURL resolves a (possibly relative) description-document URL against
// the document location, honouring an URLBase when the document declares one.
func ResolveURL(location, urlBase, ref string) (string, error) {
	base := location
	if urlBase != "" {
		base = urlBase
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", ref, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// FetchDescription downloads and parses the description document at
// location. An empty document is retried once; some devices return an empty
// body on the first request after boot.
func FetchDescription(ctx context.Context, requester Requester, location string) (*DeviceDescription, error) {
	var data []byte
	for attempt := 0; attempt < 2; attempt++ {
		status, _, body, err := requester.Request(ctx, "GET", location, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", location, err)
		}
		if status != 200 {
			return nil, &ResponseError{Status: status}
		}
		if len(strings.TrimSpace(string(body))) > 0 {
			data = body
			break
		}
	}
	if data == nil {
		return nil, fmt.Errorf("empty description from %s", location)
	}

	device, _, err := ParseDescription(data)
	if err != nil {
		return nil, err
	}
	return device, nil
}
