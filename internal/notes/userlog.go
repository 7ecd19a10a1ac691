package notes

// RecordLogin applies one login to a usage log. An existing (name, email) entry gets the new
// address and timestamp and its counter incremented; otherwise the login is appended with a
// counter of one. The input slice is not modified.
func RecordLogin(users []UserLogin, login UserLogin) []UserLogin {
	updated := make([]UserLogin, len(users), len(users)+1)
	copy(updated, users)
	for index := range updated {
		if !updated[index].SameIdentity(login) {
			continue
		}
		updated[index].LastLoginAt = login.LastLoginAt
		updated[index].IP = login.IP
		count := updated[index].LoginCount
		if count < 1 {
			count = 1
		}
		updated[index].LoginCount = count + 1
		return updated
	}
	login.LoginCount = 1
	return append(updated, login)
}
