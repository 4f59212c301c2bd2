package models

// Hub is an ACC/BIM 360 account visible to the signed-in user.
type Hub struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
}

// Project is a project inside a hub.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Entry types returned by folder listings.
const (
	EntryFolder = "folders"
	EntryItem   = "items"
)

// Entry is a folder or item inside a project folder.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Version is one stored version of an item.
type Version struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Number     int    `json:"number"`
	StorageURN string `json:"storage_urn,omitempty"`
}

// ObjectRef locates an object in the vendor's object storage service.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// IsZero reports whether the reference is empty.
func (r ObjectRef) IsZero() bool {
	return r.Bucket == "" && r.Key == ""
}

// URN returns the object's storage URN.
func (r ObjectRef) URN() string {
	return "urn:adsk.objects:os.object:" + r.Bucket + "/" + r.Key
}
