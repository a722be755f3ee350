package models

import "testing"

func TestFriendCounterpart(t *testing.T) {
	alice := User{BaseModel: BaseModel{ID: "a"}, Name: "Alice", Email: "alice@example.com", Image: "https://img/a.png"}
	bob := User{BaseModel: BaseModel{ID: "b"}, Name: "Bob", Email: "bob@example.com"}
	f := Friend{UserID: "a", FriendID: "b", Requester: alice, Recipient: bob}

	if got := f.Counterpart("a"); got.ID != "b" {
		t.Errorf("Counterpart(requester) = %q, want b", got.ID)
	}
	other := f.Counterpart("b")
	if other.ID != "a" {
		t.Fatalf("Counterpart(recipient) = %q, want a", other.ID)
	}

	want := UserBasicInfo{ID: "a", Name: "Alice", Email: "alice@example.com", Image: "https://img/a.png"}
	if got := other.BasicInfo(); got != want {
		t.Errorf("BasicInfo = %+v, want %+v", got, want)
	}
}
